package geo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop_Locate(t *testing.T) {
	assert.Equal(t, Location{}, Nop{}.Locate("8.8.8.8"))
}

func TestOpen_MissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "GeoLite2-City.mmdb"))
	assert.Error(t, err)
}

func TestCityRecord_Location(t *testing.T) {
	lat, lon := 60.1708, 24.9375

	var rec cityRecord
	rec.City.Names = map[string]string{"en": "Helsinki", "fi": "Helsinki"}
	rec.Country.ISOCode = "FI"
	rec.Country.Names = map[string]string{"en": "Finland", "de": "Finnland"}
	rec.Location.Latitude = &lat
	rec.Location.Longitude = &lon

	loc := rec.location()
	require.NotNil(t, loc.City)
	assert.Equal(t, "Helsinki", *loc.City)
	assert.Equal(t, "Finland", *loc.Country)
	assert.Equal(t, "FI", *loc.CountryCode)
	assert.InDelta(t, lat, *loc.Latitude, 1e-9)
	assert.InDelta(t, lon, *loc.Longitude, 1e-9)
}

func TestCityRecord_CountryOnly(t *testing.T) {
	var rec cityRecord
	rec.Country.ISOCode = "SE"
	rec.Country.Names = map[string]string{"en": "Sweden"}

	loc := rec.location()
	assert.Nil(t, loc.City)
	assert.Nil(t, loc.Latitude)
	assert.Nil(t, loc.Longitude)
	assert.Equal(t, "SE", *loc.CountryCode)
}
