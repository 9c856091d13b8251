// Package ip2region is a single-source backend over ip2region xdb files.
package ip2region

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"

	"georesolve/pkg/geo"
	"georesolve/pkg/model"
)

type searcher interface {
	SearchByStr(ip string) (string, error)
}

// Backend answers lookups from an IPv4 and/or IPv6 xdb file
type Backend struct {
	name string
	v4   searcher
	v6   searcher
	done []func()
}

// New opens the "v4" and "v6" sources; at least one is required
func New(cfg model.BackendConfig) (*Backend, error) {
	v4Path, v6Path := cfg.Source(model.SourceV4), cfg.Source(model.SourceV6)
	if v4Path == "" && v6Path == "" {
		v4Path = cfg.Source(model.SourceDB)
	}
	if v4Path == "" && v6Path == "" {
		return nil, fmt.Errorf("ip2region database path not configured")
	}

	b := &Backend{name: cfg.Name}
	if v4Path != "" {
		s, err := xdb.NewWithFileOnly(xdb.IPv4, v4Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open ip2region v4 database: %w", err)
		}
		b.v4 = s
		b.done = append(b.done, s.Close)
	}
	if v6Path != "" {
		s, err := xdb.NewWithFileOnly(xdb.IPv6, v6Path)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to open ip2region v6 database: %w", err)
		}
		b.v6 = s
		b.done = append(b.done, s.Close)
	}
	return b, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Available() bool { return b.v4 != nil || b.v6 != nil }

// Lookup searches the file matching the address family
func (b *Backend) Lookup(ip netip.Addr) (*model.Record, error) {
	ip = ip.Unmap()
	s := b.v6
	if ip.Is4() {
		s = b.v4
	}
	if s == nil {
		return nil, model.ErrNotFound
	}

	region, err := s.SearchByStr(ip.String())
	if err != nil {
		return nil, fmt.Errorf("ip2region lookup failed: %w", err)
	}

	rec := parseRegion(region)
	if rec == nil {
		return nil, model.ErrNotFound
	}
	rec.IP = ip.String()
	rec.Backend = b.name
	return rec, nil
}

func (b *Backend) Close() error {
	for _, fn := range b.done {
		fn()
	}
	b.done = nil
	return nil
}

// parseRegion maps "country|region|province|city|isp[|iso]" to a record.
// A trailing two-letter field is taken as the ISO country code.
func parseRegion(s string) *model.Record {
	parts := strings.Split(s, "|")
	field := func(i int) string {
		if i >= len(parts) {
			return ""
		}
		return safe(parts[i])
	}

	rec := &model.Record{
		CountryName: field(0),
		Subdivision: field(2),
		City:        field(3),
	}
	if iso := field(len(parts) - 1); len(parts) > 5 && len(iso) == 2 {
		rec.CountryCode = strings.ToUpper(iso)
		rec.ContinentCode = geo.ContinentOf(rec.CountryCode)
		rec.ContinentName = geo.ContinentName(rec.ContinentCode)
	}

	if rec.CountryName == "" && rec.CountryCode == "" {
		return nil
	}
	return rec
}

func safe(s string) string {
	s = strings.TrimSpace(s)
	if s == "0" || s == "" || strings.EqualFold(s, "unknown") {
		return ""
	}
	return s
}
