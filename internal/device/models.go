package device

import (
	"fmt"
	"time"
)

// Type is the client reported form factor.
type Type string

const (
	MobilePhone Type = "mobilephone"
	MiniTablet  Type = "minitablet"
	Tablet      Type = "tablet"
	Other       Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case MobilePhone, MiniTablet, Tablet, Other:
		return true
	}
	return false
}

// Report is one device configuration as self-reported by a client.
// Nil pointers are absent values; they are never the empty string or zero.
type Report struct {
	Platform        string  `json:"platform"`
	PlatformInfo    *string `json:"platform_info,omitempty"`
	Manufacturer    string  `json:"manufacturer"`
	Model           string  `json:"model"`
	ProductName     *string `json:"product_name,omitempty"`
	OSVersion       string  `json:"os_version"`
	DeviceType      Type    `json:"device_type"`
	TotalRAM        *int    `json:"total_ram,omitempty"` // kB
	NumCPUCores     *int    `json:"num_cpu_cores,omitempty"`
	CPUType         *string `json:"cpu_type,omitempty"`
	CPUMaxFrequency *int    `json:"cpu_max_frequency,omitempty"` // MHz
	ScreenWidth     *int    `json:"screen_width,omitempty"`
	ScreenHeight    *int    `json:"screen_height,omitempty"`
	GLVendor        string  `json:"gl_vendor"`
	GLRenderer      string  `json:"gl_renderer"`
	GLVersion       string  `json:"gl_version"`
	GLSLVersion     string  `json:"glsl_version"`
	MissingFeatures *string `json:"missing_features,omitempty"`
}

// Device is a persisted Report.
type Device struct {
	ID       int64     `json:"id"`
	Added    time.Time `json:"added"`
	Disabled bool      `json:"disabled"`
	Report
}

// DisplayName is "manufacturer model product", without a trailing product
// when none is known.
func (r Report) DisplayName() string {
	if r.ProductName == nil {
		return fmt.Sprintf("%s %s", r.Manufacturer, r.Model)
	}
	return fmt.Sprintf("%s %s %s", r.Manufacturer, r.Model, *r.ProductName)
}

// MatchPolicy selects which fields take part in fingerprint equality.
type MatchPolicy struct {
	MatchProductName bool
}

// Match is the outcome of FindOrMarkNew. Exactly one of Existing and New is
// set. Matches counts stored records equal to the report; more than one
// means the store holds duplicate fingerprints.
type Match struct {
	Existing *Device
	New      *Report
	Matches  int
}

func (m Match) Duplicate() bool { return m.Matches > 1 }
