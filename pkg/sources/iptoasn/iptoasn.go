// Package iptoasn is a backend over the iptoasn.com range dump
// (ip2asn-combined.tsv, optionally gzipped). It answers with the country
// and origin network of the announcing AS.
package iptoasn

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sort"
	"strings"

	"georesolve/pkg/geo"
	"georesolve/pkg/logging"
	"georesolve/pkg/model"
	"georesolve/pkg/util/ipcodec"
)

// Backend holds the routed ranges sorted by start address
type Backend struct {
	name string
	rows []Row
}

// New loads the dump named by the "db" source
func New(cfg model.BackendConfig) (*Backend, error) {
	path := cfg.Source(model.SourceDB)
	if path == "" {
		return nil, fmt.Errorf("iptoasn dump path not configured")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open iptoasn dump: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	b, err := NewFromReader(cfg.Name, r)
	if err != nil {
		return nil, err
	}
	log := logging.Component("iptoasn")
	log.Info().
		Str("backend", cfg.Name).
		Int("ranges", len(b.rows)).
		Msg("Loaded iptoasn dump")
	return b, nil
}

// NewFromReader parses a TSV dump; unrouted ranges are dropped
func NewFromReader(name string, r io.Reader) (*Backend, error) {
	rows, err := NewParser(r).ParseAll()
	if err != nil {
		return nil, err
	}

	routed := rows[:0]
	for _, row := range rows {
		if row.ASN != 0 {
			routed = append(routed, row)
		}
	}
	sort.SliceStable(routed, func(i, j int) bool {
		return routed[i].Start.Less(routed[j].Start)
	})
	return &Backend{name: name, rows: routed}, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Available() bool { return len(b.rows) > 0 }

// Lookup finds the last range starting at or before ip
func (b *Backend) Lookup(ip netip.Addr) (*model.Record, error) {
	ip = ip.Unmap()
	i := sort.Search(len(b.rows), func(i int) bool {
		return ip.Less(b.rows[i].Start)
	}) - 1
	if i < 0 {
		return nil, model.ErrNotFound
	}
	row := b.rows[i]
	if !ipcodec.IsInRange(ip, row.Start, row.End) {
		return nil, model.ErrNotFound
	}

	rec := &model.Record{
		IP:            ip.String(),
		CountryCode:   row.Country,
		ContinentCode: geo.ContinentOf(row.Country),
		Backend:       b.name,
	}
	rec.ContinentName = geo.ContinentName(rec.ContinentCode)
	rec.Network = model.NewNetwork(row.ASN, row.ASName, enclosingBlock(ip, row.Start, row.End))
	if rec.CountryCode == "" && rec.Network == nil {
		return nil, model.ErrNotFound
	}
	return rec, nil
}

func (b *Backend) Close() error {
	b.rows = nil
	return nil
}

// enclosingBlock returns the largest CIDR containing ip that lies inside
// [start, end]
func enclosingBlock(ip, start, end netip.Addr) string {
	for bits := 0; bits <= ip.BitLen(); bits++ {
		p := netip.PrefixFrom(ip, bits).Masked()
		if p.Addr().Compare(start) >= 0 && ipcodec.LastAddr(p).Compare(end) <= 0 {
			return p.String()
		}
	}
	return ""
}
