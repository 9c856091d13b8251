package rangedb

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"georesolve/pkg/model"
	"georesolve/pkg/util/ipcodec"
)

// CurrentSchema is the range value layout written by this package
const CurrentSchema = 1

var manifestKey = ipcodec.MetaKey("manifest")

// Manifest describes how and when a database was built
type Manifest struct {
	Schema  int       `msgpack:"schema"`
	BuiltAt time.Time `msgpack:"built_at"`
	Builder string    `msgpack:"builder"`
}

// WriteManifest replaces the stored manifest
func (d *DB) WriteManifest(m Manifest) error {
	data, err := msgpack.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return d.Put(manifestKey, data)
}

// ReadManifest returns the stored manifest, or a zero Manifest if the
// database has none
func (d *DB) ReadManifest() (Manifest, error) {
	var m Manifest
	data, err := d.Get(manifestKey)
	if err != nil || data == nil {
		return m, err
	}
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// InitializeMetadata stamps a freshly built database
func (d *DB) InitializeMetadata(builder string) error {
	return d.WriteManifest(Manifest{
		Schema:  CurrentSchema,
		BuiltAt: time.Now().UTC().Truncate(time.Second),
		Builder: builder,
	})
}

// Stats walks both address families once and aggregates counts
func (d *DB) Stats(ctx context.Context) (*model.Stats, error) {
	m, err := d.ReadManifest()
	if err != nil {
		return nil, err
	}
	stats := &model.Stats{
		RecordsByCountry:   make(map[string]int64),
		RecordsByContinent: make(map[string]int64),
		LastBuiltAt:        m.BuiltAt,
		SchemaVersion:      m.Schema,
		BuilderVersion:     m.Builder,
	}

	for _, v4 := range []bool{true, false} {
		counter := &stats.IPv6Records
		if v4 {
			counter = &stats.IPv4Records
		}
		err := d.IterateRanges(v4, func(r *model.Range) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			*counter++
			stats.RecordsByCountry[r.Geo.CountryCode]++
			stats.RecordsByContinent[r.Geo.ContinentCode]++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to iterate ranges: %w", err)
		}
	}
	stats.TotalRecords = stats.IPv4Records + stats.IPv6Records
	return stats, nil
}
