// Package ip2location is a single-source backend over an IP2Location BIN database.
package ip2location

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ip2location/ip2location-go/v9"

	"georesolve/pkg/geo"
	"georesolve/pkg/model"
)

// Synthetic geoname ids live above the GeoNames id space
const (
	geonameBase   = 900000000
	geonameSpread = 99999999
)

// reader is the part of the IP2Location client the backend uses
type reader interface {
	Get_all(ip string) (ip2location.IP2Locationrecord, error)
}

// Backend answers lookups from one IP2Location database
type Backend struct {
	name  string
	db    reader
	close func()
}

// New opens the database named by the "db" source
func New(cfg model.BackendConfig) (*Backend, error) {
	path := cfg.Source(model.SourceDB)
	if path == "" {
		return nil, fmt.Errorf("ip2location database path not configured")
	}
	db, err := ip2location.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open IP2Location database: %w", err)
	}
	return &Backend{name: cfg.Name, db: db, close: db.Close}, nil
}

func newFrom(name string, r reader) *Backend {
	return &Backend{name: name, db: r}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Available() bool { return b.db != nil }

// Lookup returns the record for ip; rows without a country are no data
func (b *Backend) Lookup(ip netip.Addr) (*model.Record, error) {
	raw, err := b.db.Get_all(ip.String())
	if err != nil {
		return nil, fmt.Errorf("ip2location lookup failed: %w", err)
	}

	country := clean(raw.Country_short)
	if country == "" {
		return nil, model.ErrNotFound
	}

	region := clean(raw.Region)
	city := clean(raw.City)
	continent := geo.ContinentOf(country)

	rec := &model.Record{
		GeonameID:     syntheticGeonameID(country, region, city),
		IP:            ip.String(),
		CountryCode:   country,
		CountryName:   clean(raw.Country_long),
		ContinentCode: continent,
		ContinentName: geo.ContinentName(continent),
		City:          city,
		Subdivision:   region,
		PostalCode:    clean(raw.Zipcode),
		TimeZone:      clean(raw.Timezone),
		Backend:       b.name,
	}
	if raw.Latitude != 0 || raw.Longitude != 0 {
		rec.Latitude = model.Float(float64(raw.Latitude))
		rec.Longitude = model.Float(float64(raw.Longitude))
	}
	return rec, nil
}

func (b *Backend) Close() error {
	if b.close != nil {
		b.close()
	}
	return nil
}

// clean maps the library's placeholder values to empty strings
func clean(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "-", s == "":
		return ""
	case strings.HasPrefix(s, "This parameter is unavailable"),
		strings.HasPrefix(s, "Invalid IP address"),
		strings.HasPrefix(s, "Invalid database file"):
		return ""
	}
	return s
}

// syntheticGeonameID derives a stable id for a country/region/city triple
func syntheticGeonameID(country, region, city string) uint {
	h := xxhash.Sum64String(country + "_" + region + "_" + city)
	return uint(geonameBase + h%geonameSpread)
}
