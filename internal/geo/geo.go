package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
	"github.com/rs/zerolog/log"
)

// Location is where a submitter's address resolves to. Unknown parts are nil.
type Location struct {
	Latitude    *float64
	Longitude   *float64
	City        *string
	Country     *string
	CountryCode *string
}

// Locator resolves client addresses. Failures resolve to an empty Location.
type Locator interface {
	Locate(ip string) Location
}

// Nop is used when no GeoIP database is configured.
type Nop struct{}

func (Nop) Locate(string) Location { return Location{} }

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  *float64 `maxminddb:"latitude"`
		Longitude *float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// Reader looks addresses up in a MaxMind City database.
type Reader struct {
	db *maxminddb.Reader
}

func Open(path string) (*Reader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) Locate(ip string) Location {
	addr := net.ParseIP(ip)
	if addr == nil {
		log.Debug().Str("addr", ip).Msg("geoip: not an ip address")
		return Location{}
	}

	var rec cityRecord
	_, ok, err := r.db.LookupNetwork(addr, &rec)
	if err != nil {
		log.Warn().Err(err).Str("addr", ip).Msg("geoip lookup")
		return Location{}
	}
	if !ok {
		return Location{}
	}
	return rec.location()
}

func (rec cityRecord) location() Location {
	var loc Location
	loc.Latitude = rec.Location.Latitude
	loc.Longitude = rec.Location.Longitude
	if name := rec.City.Names["en"]; name != "" {
		loc.City = &name
	}
	if name := rec.Country.Names["en"]; name != "" {
		loc.Country = &name
	}
	if code := rec.Country.ISOCode; code != "" {
		loc.CountryCode = &code
	}
	return loc
}
