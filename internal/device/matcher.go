package device

import (
	"github.com/rs/zerolog/log"

	"mmark-score/internal/platform"
)

const (
	legacyVersion = "1.0"
	platformIOS   = "ios"
	apple         = "Apple"
)

// PolicyFor derives the match policy from the submission protocol version.
// Legacy iOS clients misreport product_name, so it is left out for them.
func PolicyFor(protocolVersion string, r Report) MatchPolicy {
	return MatchPolicy{
		MatchProductName: !(protocolVersion == legacyVersion && r.Platform == platformIOS),
	}
}

// Prepare applies the client bug fix-ups for the given protocol version and
// returns the corrected report with its match policy. r is not modified.
func Prepare(protocolVersion string, r Report) (Report, MatchPolicy) {
	out := r

	// 1.0 iOS clients report the wrong platform.
	if protocolVersion == legacyVersion && out.Manufacturer == apple {
		out.Platform = platformIOS
	}

	if out.Platform == platformIOS && out.PlatformInfo != nil {
		p, ok := platform.Parse(*out.PlatformInfo)
		if ok {
			log.Debug().
				Str("platform_info", *out.PlatformInfo).
				Str("model", p.Model).
				Str("product", p.Name()).
				Msg("parsed platform info")
			out.Model = p.Model
			out.ProductName = p.ProductName
		} else {
			log.Debug().Str("platform_info", *out.PlatformInfo).Msg("could not parse platform")
		}
	}

	return out, PolicyFor(protocolVersion, out)
}

type field struct {
	name string
	eq   func(a, b *Report) bool
	// optional fields only take part when the incoming report carries them
	onlyIfSet func(r *Report) bool
}

// fields is the full fingerprint. product_name is filtered by policy.
var fields = []field{
	{name: "manufacturer", eq: func(a, b *Report) bool { return a.Manufacturer == b.Manufacturer }},
	{name: "platform", eq: func(a, b *Report) bool { return a.Platform == b.Platform }},
	{
		name:      "platform_info",
		eq:        func(a, b *Report) bool { return eqPtr(a.PlatformInfo, b.PlatformInfo) },
		onlyIfSet: func(r *Report) bool { return r.PlatformInfo != nil },
	},
	{name: "model", eq: func(a, b *Report) bool { return a.Model == b.Model }},
	{name: "product_name", eq: func(a, b *Report) bool { return eqPtr(a.ProductName, b.ProductName) }},
	{name: "device_type", eq: func(a, b *Report) bool { return a.DeviceType == b.DeviceType }},
	{name: "os_version", eq: func(a, b *Report) bool { return a.OSVersion == b.OSVersion }},
	{name: "total_ram", eq: func(a, b *Report) bool { return eqPtr(a.TotalRAM, b.TotalRAM) }},
	{name: "num_cpu_cores", eq: func(a, b *Report) bool { return eqPtr(a.NumCPUCores, b.NumCPUCores) }},
	{name: "cpu_type", eq: func(a, b *Report) bool { return eqPtr(a.CPUType, b.CPUType) }},
	{name: "cpu_max_frequency", eq: func(a, b *Report) bool { return eqPtr(a.CPUMaxFrequency, b.CPUMaxFrequency) }},
	{name: "screen_width", eq: func(a, b *Report) bool { return eqPtr(a.ScreenWidth, b.ScreenWidth) }},
	{name: "screen_height", eq: func(a, b *Report) bool { return eqPtr(a.ScreenHeight, b.ScreenHeight) }},
	{name: "gl_vendor", eq: func(a, b *Report) bool { return a.GLVendor == b.GLVendor }},
	{name: "gl_renderer", eq: func(a, b *Report) bool { return a.GLRenderer == b.GLRenderer }},
	{name: "gl_version", eq: func(a, b *Report) bool { return a.GLVersion == b.GLVersion }},
	{name: "glsl_version", eq: func(a, b *Report) bool { return a.GLSLVersion == b.GLSLVersion }},
	{name: "missing_features", eq: func(a, b *Report) bool { return eqPtr(a.MissingFeatures, b.MissingFeatures) }},
}

// predicate returns the equality check for r under policy p.
func predicate(r *Report, p MatchPolicy) func(*Report) bool {
	active := make([]field, 0, len(fields))
	for _, f := range fields {
		if f.name == "product_name" && !p.MatchProductName {
			continue
		}
		if f.onlyIfSet != nil && !f.onlyIfSet(r) {
			continue
		}
		active = append(active, f)
	}
	return func(other *Report) bool {
		for _, f := range active {
			if !f.eq(r, other) {
				return false
			}
		}
		return true
	}
}

// FindOrMarkNew looks for a stored device with the same fingerprint as r.
// The first match in the order of existing wins. With no match the result
// asks the caller to persist r.
func FindOrMarkNew(r Report, p MatchPolicy, existing []Device) Match {
	eq := predicate(&r, p)

	var m Match
	for i := range existing {
		if !eq(&existing[i].Report) {
			continue
		}
		if m.Existing == nil {
			m.Existing = &existing[i]
		}
		m.Matches++
	}

	switch {
	case m.Existing == nil:
		m.New = &r
	case m.Duplicate():
		log.Warn().
			Int64("device_id", m.Existing.ID).
			Int("matches", m.Matches).
			Msg("several identical device records found")
	}
	return m
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
