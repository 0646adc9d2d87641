package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KnownCodes(t *testing.T) {
	tests := []struct {
		raw     string
		model   string
		product string
	}{
		{"iPhone1,2", "iPhone", "3G"},
		{"iPhone2,1", "iPhone", "3GS"},
		{"iPhone3,1", "iPhone", "4"},
		{"iPhone3,3", "iPhone", "4"},
		{"iPhone4,1", "iPhone", "4S"},
		{"iPhone5,1", "iPhone", "5"},
		{"iPhone5,2", "iPhone", "5"},
		{"iPhone5,3", "iPhone", "5C"},
		{"iPhone5,4", "iPhone", "5C"},
		{"iPhone6,1", "iPhone", "5S"},
		{"iPhone1,1", "iPhone", "unknown"},
		{"iPhone7,2", "iPhone", "unknown"},
		{"iPod1,1", "iPod", "1G"},
		{"iPod2,1", "iPod", "2G"},
		{"iPod3,1", "iPod", "3G"},
		{"iPod4,1", "iPod", "4G"},
		{"iPod5,1", "iPod", "5G"},
		{"iPod7,1", "iPod", "unknown"},
		{"iPad1,1", "iPad", "1G"},
		{"iPad2,1", "iPad", "2G"},
		{"iPad2,4", "iPad", "2G"},
		{"iPad2,5", "iPad Mini", "1G"},
		{"iPad2,6", "iPad Mini", "1G"},
		{"iPad2,7", "iPad Mini", "1G"},
		{"iPad3,1", "iPad", "3G"},
		{"iPad3,3", "iPad", "3G"},
		{"iPad3,4", "iPad", "4G"},
		{"iPad3,5", "iPad", "4G"},
		{"iPad3,6", "iPad", "4G"},
		{"iPad4,1", "iPad", "Air"},
		{"iPad4,2", "iPad", "Air"},
		{"iPad4,4", "iPad Mini", "2G"},
		{"iPad4,5", "iPad Mini", "2G"},
		{"AppleTV2,1", "Apple TV", "2G"},
		{"AppleTV3,1", "Apple TV", "3G"},
		{"AppleTV3,2", "Apple TV", "3G"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, ok := Parse(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.model, p.Model)
			require.NotNil(t, p.ProductName)
			assert.Equal(t, tt.product, *p.ProductName)
		})
	}
}

func TestParse_IFPGAHasNoProduct(t *testing.T) {
	p, ok := Parse("iFPGA")
	require.True(t, ok)
	assert.Equal(t, "iFPGA", p.Model)
	assert.Nil(t, p.ProductName)
	assert.Equal(t, "iFPGA", p.Name())
}

func TestParse_Unparseable(t *testing.T) {
	for _, raw := range []string{"", "iPadXYZ", "Nexus5", "iPad4,3", "iPad4,6", "iPad5,1", "ipad3,1", "iFPGA2", "x86_64"} {
		t.Run(raw, func(t *testing.T) {
			p, ok := Parse(raw)
			assert.False(t, ok)
			assert.Equal(t, Parsed{}, p)
		})
	}
}

func TestParse_ExactBeforePrefix(t *testing.T) {
	tests := []struct {
		raw, want, notWant string
	}{
		{"iPad2,6", "iPad Mini 1G", "iPad 2G"},
		{"iPad3,5", "iPad 4G", "iPad 3G"},
		{"iPhone5,3", "iPhone 5C", "iPhone 5"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, ok := Parse(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Name())
			assert.NotEqual(t, tt.notWant, p.Name())
		})
	}
}

func TestParse_ResultsAreIndependent(t *testing.T) {
	a, _ := Parse("iPad3,1")
	*a.ProductName = "changed"

	b, ok := Parse("iPad3,1")
	require.True(t, ok)
	assert.Equal(t, "3G", *b.ProductName)
}
