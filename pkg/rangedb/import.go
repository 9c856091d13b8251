package rangedb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"georesolve/pkg/geo"
	"georesolve/pkg/model"
	"georesolve/pkg/util/ipcodec"
)

// CSVColumns is the column order accepted by ImportCSV. A header row
// starting with "network" is skipped.
var CSVColumns = []string{
	"network", "country_code", "country_name", "continent_code",
	"subdivision_code", "subdivision", "city", "postal_code",
	"latitude", "longitude", "time_zone", "asn", "asn_organization",
}

// ImportStats summarises an import run
type ImportStats struct {
	Rows     int
	Stored   int
	Skipped  int // covered by a less specific range
	Rejected int // malformed rows
}

// ImportCSV reads ranges from r and stores them least specific first so
// broader ranges win over nested ones
func (d *DB) ImportCSV(ctx context.Context, r io.Reader) (*ImportStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	stats := &ImportStats{}
	var ranges []*model.Range

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "network") {
			continue
		}
		stats.Rows++

		rng, err := ParseRow(row)
		if err != nil {
			stats.Rejected++
			continue
		}
		ranges = append(ranges, rng)
	}

	sort.SliceStable(ranges, func(i, j int) bool {
		return prefixBits(ranges[i]) < prefixBits(ranges[j])
	})

	for _, rng := range ranges {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := d.PutRange(rng); err != nil {
			if errors.Is(err, model.ErrOverlap) {
				stats.Skipped++
				continue
			}
			return stats, err
		}
		stats.Stored++
	}

	return stats, nil
}

func prefixBits(r *model.Range) int {
	p, err := netip.ParsePrefix(r.Prefix)
	if err != nil {
		return 0
	}
	return p.Bits()
}

// ParseRow converts one CSV row in CSVColumns order into a Range
func ParseRow(row []string) (*model.Range, error) {
	col := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	prefix, err := ipcodec.NormalizePrefix(col(0))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRange, err)
	}
	start, end, err := ipcodec.CIDRToRange(prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRange, err)
	}

	rec := model.Record{
		CountryCode:     strings.ToUpper(col(1)),
		CountryName:     col(2),
		ContinentCode:   strings.ToUpper(col(3)),
		SubdivisionCode: col(4),
		Subdivision:     col(5),
		City:            col(6),
		PostalCode:      col(7),
		TimeZone:        col(10),
	}
	if rec.ContinentCode == "" {
		rec.ContinentCode = geo.ContinentOf(rec.CountryCode)
	}
	rec.ContinentName = geo.ContinentName(rec.ContinentCode)

	if lat, lon := col(8), col(9); lat != "" && lon != "" {
		latF, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q: %w", lat, err)
		}
		lonF, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q: %w", lon, err)
		}
		rec.Latitude, rec.Longitude = model.Float(latF), model.Float(lonF)
	}

	if asn := strings.TrimPrefix(strings.ToUpper(col(11)), "AS"); asn != "" {
		n, err := strconv.ParseUint(asn, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid asn %q: %w", col(11), err)
		}
		rec.Network = model.NewNetwork(uint(n), col(12), prefix)
	}

	return &model.Range{Start: start, End: end, Prefix: prefix, Geo: rec, Schema: 1}, nil
}
