package platform

import "strings"

// Parsed is the canonical model/product pair for an iOS platform string.
// ProductName is nil when the platform has no product generation (iFPGA).
type Parsed struct {
	Model       string
	ProductName *string
}

type kind int

const (
	exact kind = iota
	prefix
)

type rule struct {
	kind     kind
	patterns []string
	model    string
	product  *string
}

func (r rule) matches(raw string) bool {
	for _, p := range r.patterns {
		switch r.kind {
		case exact:
			if raw == p {
				return true
			}
		case prefix:
			if strings.HasPrefix(raw, p) {
				return true
			}
		}
	}
	return false
}

func str(s string) *string { return &s }

// rules are evaluated top to bottom, first match wins. Inside a family the
// exact codes for irregular generations must stay above the prefix rule
// they would otherwise fall into (5C, iPad Mini, iPad 4G).
// See http://theiphonewiki.com/wiki/Models
var rules = []rule{
	{exact, []string{"iFPGA"}, "iFPGA", nil},

	// iPhone
	{exact, []string{"iPhone1,2"}, "iPhone", str("3G")},
	{prefix, []string{"iPhone2"}, "iPhone", str("3GS")},
	{prefix, []string{"iPhone3"}, "iPhone", str("4")},
	{prefix, []string{"iPhone4"}, "iPhone", str("4S")},
	{exact, []string{"iPhone5,3", "iPhone5,4"}, "iPhone", str("5C")},
	{prefix, []string{"iPhone5"}, "iPhone", str("5")},
	{prefix, []string{"iPhone6"}, "iPhone", str("5S")},
	{prefix, []string{"iPhone"}, "iPhone", str("unknown")},

	// iPod
	{prefix, []string{"iPod1"}, "iPod", str("1G")},
	{prefix, []string{"iPod2"}, "iPod", str("2G")},
	{prefix, []string{"iPod3"}, "iPod", str("3G")},
	{prefix, []string{"iPod4"}, "iPod", str("4G")},
	{prefix, []string{"iPod5"}, "iPod", str("5G")},
	{prefix, []string{"iPod"}, "iPod", str("unknown")},

	// iPad. No catch-all: unknown generations stay unparsed.
	{prefix, []string{"iPad1"}, "iPad", str("1G")},
	{exact, []string{"iPad2,5", "iPad2,6", "iPad2,7"}, "iPad Mini", str("1G")},
	{prefix, []string{"iPad2"}, "iPad", str("2G")},
	{exact, []string{"iPad3,4", "iPad3,5", "iPad3,6"}, "iPad", str("4G")},
	{prefix, []string{"iPad3"}, "iPad", str("3G")},
	{exact, []string{"iPad4,1", "iPad4,2"}, "iPad", str("Air")},
	{exact, []string{"iPad4,4", "iPad4,5"}, "iPad Mini", str("2G")},

	// Apple TV
	{prefix, []string{"AppleTV2"}, "Apple TV", str("2G")},
	{prefix, []string{"AppleTV"}, "Apple TV", str("3G")},
}

// Parse maps a platform string of the form "family<gen>,<rev>" (e.g.
// "iPad3,1") to its model and product name. ok is false when no rule
// matches; callers keep the client reported values in that case.
func Parse(raw string) (p Parsed, ok bool) {
	for _, r := range rules {
		if r.matches(raw) {
			p = Parsed{Model: r.model}
			if r.product != nil {
				p.ProductName = str(*r.product)
			}
			return p, true
		}
	}
	return Parsed{}, false
}

// Name returns "model product" or just the model when there is no product.
func (p Parsed) Name() string {
	if p.ProductName == nil {
		return p.Model
	}
	return p.Model + " " + *p.ProductName
}
