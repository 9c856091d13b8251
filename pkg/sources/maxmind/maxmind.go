package maxmind

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"georesolve/pkg/geo"
	"georesolve/pkg/model"
)

// Readers contains MaxMind database readers
type Readers struct {
	City *geoip2.Reader
	ASN  *maxminddb.Reader
}

// OpenCity opens a GeoIP2/GeoLite2 City database
func OpenCity(path string) (*geoip2.Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("city database path not configured")
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open City database: %w", err)
	}
	return db, nil
}

// OpenASN opens a GeoLite2 ASN database
func OpenASN(path string) (*maxminddb.Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("ASN database path not configured")
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ASN database: %w", err)
	}
	return db, nil
}

// Close closes both database readers
func (r *Readers) Close() error {
	var err error
	if r.ASN != nil {
		if e := r.ASN.Close(); e != nil {
			err = e
		}
	}
	if r.City != nil {
		if e := r.City.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// asnRecord mirrors the GeoLite2-ASN record layout
type asnRecord struct {
	Number       uint   `maxminddb:"autonomous_system_number"`
	Organization string `maxminddb:"autonomous_system_organization"`
}

// Network returns the ASN, organization and enclosing network for an IP.
// A nil result means the ASN database has no entry for ip.
func (r *Readers) Network(ip netip.Addr) (*model.Network, error) {
	if r.ASN == nil {
		return nil, fmt.Errorf("ASN database not open")
	}

	var record asnRecord
	network, ok, err := r.ASN.LookupNetwork(net.IP(ip.AsSlice()), &record)
	if err != nil {
		return nil, fmt.Errorf("ASN lookup failed: %w", err)
	}
	if !ok || network == nil {
		return nil, nil
	}
	return model.NewNetwork(record.Number, record.Organization, network.String()), nil
}

// Geo returns geographic information for an IP.
// A nil result means the City database has no entry for ip.
func (r *Readers) Geo(ip netip.Addr, locale string) (*model.Record, error) {
	if r.City == nil {
		return nil, fmt.Errorf("City database not open")
	}

	record, err := r.City.City(net.IP(ip.AsSlice()))
	if err != nil {
		return nil, fmt.Errorf("geo lookup failed: %w", err)
	}
	return cityRecord(ip, record, locale), nil
}

// cityRecord maps a City response. Records without any geoname id are
// treated as no data.
func cityRecord(ip netip.Addr, c *geoip2.City, locale string) *model.Record {
	geonameID := c.City.GeoNameID
	if geonameID == 0 {
		geonameID = c.Country.GeoNameID
	}
	if geonameID == 0 {
		return nil
	}

	rec := &model.Record{
		GeonameID:      geonameID,
		IP:             ip.String(),
		CountryCode:    c.Country.IsoCode,
		CountryName:    localized(c.Country.Names, locale),
		ContinentCode:  c.Continent.Code,
		ContinentName:  localized(c.Continent.Names, locale),
		City:           localized(c.City.Names, locale),
		PostalCode:     c.Postal.Code,
		TimeZone:       c.Location.TimeZone,
		AccuracyRadius: c.Location.AccuracyRadius,
	}

	// 0,0 with no radius is how the reader reports missing coordinates
	if c.Location.Latitude != 0 || c.Location.Longitude != 0 || c.Location.AccuracyRadius != 0 {
		rec.Latitude = model.Float(c.Location.Latitude)
		rec.Longitude = model.Float(c.Location.Longitude)
	}

	// Most specific subdivision
	if n := len(c.Subdivisions); n > 0 {
		sub := c.Subdivisions[n-1]
		rec.Subdivision = localized(sub.Names, locale)
		rec.SubdivisionCode = sub.IsoCode
	}

	if rec.ContinentCode == "" {
		rec.ContinentCode = geo.ContinentOf(rec.CountryCode)
	}
	if rec.ContinentName == "" {
		rec.ContinentName = geo.ContinentName(rec.ContinentCode)
	}

	return rec
}

// localized picks the locale name, falling back to English
func localized(names map[string]string, locale string) string {
	if v, ok := names[locale]; ok && v != "" {
		return v
	}
	return names["en"]
}
