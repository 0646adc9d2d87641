package submission

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mmark-score/internal/device"
)

// Submission is one decoded upload from a benchmark client.
type Submission struct {
	SubmitID string
	UserName *string
	Score    Score
	device   deviceInfo
}

// Score holds the benchmark results of a run.
type Score struct {
	Version               string          `json:"version"`
	TotalScore            int             `json:"total_score"`
	LoadtimeScore         int             `json:"loadtime_score"`
	FractalScore          int             `json:"fractal_score"`
	FractalLoadtime       decimal.Decimal `json:"fractal_loadtime"`
	FractalNumImages      int             `json:"fractal_num_images"`
	FillrateScore         int             `json:"fillrate_score"`
	FillrateLoadtime      decimal.Decimal `json:"fillrate_loadtime"`
	ChessScore            int             `json:"chess_score"`
	ChessLoadtime         decimal.Decimal `json:"chess_loadtime"`
	ChessFPS              decimal.Decimal `json:"chess_fps"`
	MountainsScore        int             `json:"mountains_score"`
	MountainsLoadtime     decimal.Decimal `json:"mountains_loadtime"`
	MountainsFPS          decimal.Decimal `json:"mountains_fps"`
	UnlightedFillrate     decimal.Decimal `json:"unlighted_fillrate"`
	VertexLightedFillrate decimal.Decimal `json:"vertex_lighted_fillrate"`
	PixelLightedFillrate  decimal.Decimal `json:"pixel_lighted_fillrate"`
	MappedLightedFillrate decimal.Decimal `json:"mapped_lighted_fillrate"`
}

type deviceInfo struct {
	Platform        string  `json:"platform"`
	PlatformInfo    *string `json:"platform_info"`
	Manufacturer    string  `json:"manufacturer"`
	Model           string  `json:"model"`
	ProductName     *string `json:"product_name"`
	OSVersion       string  `json:"os_version"`
	DeviceType      string  `json:"device_type"`
	TotalRAM        OptInt  `json:"total_ram"`
	NumCPUCores     OptInt  `json:"num_cpu_cores"`
	CPUType         *string `json:"cpu_type"`
	CPUMaxFrequency OptInt  `json:"cpu_max_frequency"`
	ScreenWidth     OptInt  `json:"screen_width"`
	ScreenHeight    OptInt  `json:"screen_height"`
	GLVendor        string  `json:"gl_vendor"`
	GLRenderer      string  `json:"gl_renderer"`
	GLVersion       string  `json:"gl_version"`
	GLSLVersion     string  `json:"glsl_version"`
	MissingFeatures *string `json:"missing_features"`
}

type user struct {
	Name *string `json:"name"`
}

var (
	rootKeys   = []string{"submit_id", "device_info", "score", "user"}
	deviceKeys = []string{
		"platform", "manufacturer", "model", "product_name", "os_version",
		"device_type", "total_ram", "num_cpu_cores", "cpu_type",
		"cpu_max_frequency", "screen_width", "screen_height", "gl_vendor",
		"gl_renderer", "gl_version", "glsl_version",
	}
	scoreKeys = []string{
		"version", "total_score", "loadtime_score", "fractal_score",
		"fractal_loadtime", "fractal_num_images", "fillrate_score",
		"fillrate_loadtime", "chess_score", "chess_loadtime", "chess_fps",
		"mountains_score", "mountains_loadtime", "mountains_fps",
		"unlighted_fillrate", "vertex_lighted_fillrate",
		"pixel_lighted_fillrate", "mapped_lighted_fillrate",
	}
	userKeys = []string{"name"}
)

const maxSubmitIDLen = 36

// Decode parses an upload body. A required key that is absent yields a
// *MissingItemError naming it.
func Decode(body []byte) (Submission, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return Submission{}, invalid("body", err)
	}
	if err := requireKeys(root, rootKeys); err != nil {
		return Submission{}, err
	}

	var s Submission
	if err := json.Unmarshal(root["submit_id"], &s.SubmitID); err != nil {
		return Submission{}, invalid("submit_id", err)
	}
	if s.SubmitID == "" || len(s.SubmitID) > maxSubmitIDLen {
		return Submission{}, invalid("submit_id", fmt.Errorf("length %d", len(s.SubmitID)))
	}

	if err := decodeSection(root["device_info"], "device_info", deviceKeys, &s.device); err != nil {
		return Submission{}, err
	}
	if !device.Type(s.device.DeviceType).Valid() {
		return Submission{}, invalid("device_type", fmt.Errorf("unknown type %q", s.device.DeviceType))
	}
	if err := decodeSection(root["score"], "score", scoreKeys, &s.Score); err != nil {
		return Submission{}, err
	}

	var u user
	if err := decodeSection(root["user"], "user", userKeys, &u); err != nil {
		return Submission{}, err
	}
	s.UserName = u.Name

	return s, nil
}

func decodeSection(raw json.RawMessage, name string, keys []string, out any) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return invalid(name, err)
	}
	if err := requireKeys(m, keys); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalid(name, err)
	}
	return nil
}

func requireKeys(m map[string]json.RawMessage, keys []string) error {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return &MissingItemError{Item: k}
		}
	}
	return nil
}

// Version is the client protocol version.
func (s Submission) Version() string { return s.Score.Version }

// Device returns the reported device as sent by the client, before any
// fix-ups.
func (s Submission) Device() device.Report {
	d := s.device
	r := device.Report{
		Platform:        d.Platform,
		PlatformInfo:    d.PlatformInfo,
		Manufacturer:    d.Manufacturer,
		Model:           d.Model,
		ProductName:     d.ProductName,
		OSVersion:       d.OSVersion,
		DeviceType:      device.Type(d.DeviceType),
		TotalRAM:        d.TotalRAM.Ptr(),
		NumCPUCores:     d.NumCPUCores.Ptr(),
		CPUType:         d.CPUType,
		CPUMaxFrequency: d.CPUMaxFrequency.Ptr(),
		ScreenWidth:     d.ScreenWidth.Ptr(),
		ScreenHeight:    d.ScreenHeight.Ptr(),
		GLVendor:        d.GLVendor,
		GLRenderer:      d.GLRenderer,
		GLVersion:       d.GLVersion,
		GLSLVersion:     d.GLSLVersion,
	}
	if d.MissingFeatures != nil {
		if mf := strings.TrimSpace(*d.MissingFeatures); mf != "" {
			r.MissingFeatures = &mf
		}
	}
	return r
}
