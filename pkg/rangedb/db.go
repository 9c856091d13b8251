// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package rangedb stores geo data for IP ranges in LevelDB.
package rangedb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"

	"georesolve/pkg/model"
	"georesolve/pkg/util/ipcodec"
)

// DB is a LevelDB-backed store of geo ranges keyed by start address
type DB struct {
	path string

	mu     sync.RWMutex
	ldb    *leveldb.DB
	closed bool
}

// Options controls how the database is opened
type Options struct {
	ReadOnly bool
}

// Open opens the database at path for writing, creating it if needed
func Open(path string) (*DB, error) {
	return OpenWith(path, Options{})
}

// OpenWith opens the database with explicit options. Read-only opens
// fail when the database does not exist.
func OpenWith(path string, o Options) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, &opt.Options{
		Compression:    opt.SnappyCompression,
		WriteBuffer:    64 << 20,
		ReadOnly:       o.ReadOnly,
		ErrorIfMissing: o.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &DB{path: path, ldb: ldb}, nil
}

// view runs fn against the open LevelDB handle under the read lock
func (d *DB) view(fn func(*leveldb.DB) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return model.ErrDatabaseClosed
	}
	return fn(d.ldb)
}

// Close closes the database. Closing twice returns ErrDatabaseClosed.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return model.ErrDatabaseClosed
	}
	d.closed = true
	return d.ldb.Close()
}

// IsClosed reports whether Close was called
func (d *DB) IsClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Path returns the database directory
func (d *DB) Path() string {
	return d.path
}

// Get returns the value stored under key, or nil if there is none
func (d *DB) Get(key []byte) (value []byte, err error) {
	err = d.view(func(ldb *leveldb.DB) error {
		v, err := ldb.Get(key, nil)
		switch {
		case errors.Is(err, leveldb.ErrNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("get failed: %w", err)
		}
		value = v
		return nil
	})
	return value, err
}

// Put stores value under key
func (d *DB) Put(key, value []byte) error {
	return d.view(func(ldb *leveldb.DB) error {
		return ldb.Put(key, value, nil)
	})
}

// Delete removes key
func (d *DB) Delete(key []byte) error {
	return d.view(func(ldb *leveldb.DB) error {
		return ldb.Delete(key, nil)
	})
}

// NewIterator iterates over slice. On a closed database the iterator
// is empty and reports ErrDatabaseClosed.
func (d *DB) NewIterator(slice *util.Range) iterator.Iterator {
	var it iterator.Iterator
	if err := d.view(func(ldb *leveldb.DB) error {
		it = ldb.NewIterator(slice, nil)
		return nil
	}); err != nil {
		return iterator.NewEmptyIterator(err)
	}
	return it
}

// storedRange is the msgpack layout of a range value. The start address
// lives in the key.
type storedRange struct {
	EndBytes        []byte
	Prefix          string
	GeonameID       uint
	CountryCode     string
	CountryName     string
	ContinentCode   string
	ContinentName   string
	City            string
	PostalCode      string
	Lat             *float64
	Lon             *float64
	TimeZone        string
	Subdivision     string
	SubdivisionCode string
	AccuracyRadius  uint16
	ASN             uint
	ASNOrg          string
	Network         string
	Schema          int
}

// encodeRange serializes a Range to msgpack
func encodeRange(r *model.Range) ([]byte, error) {
	g := r.Geo
	data := storedRange{
		EndBytes:        ipcodec.IPToBytes(r.End),
		Prefix:          r.Prefix,
		GeonameID:       g.GeonameID,
		CountryCode:     g.CountryCode,
		CountryName:     g.CountryName,
		ContinentCode:   g.ContinentCode,
		ContinentName:   g.ContinentName,
		City:            g.City,
		PostalCode:      g.PostalCode,
		Lat:             g.Latitude,
		Lon:             g.Longitude,
		TimeZone:        g.TimeZone,
		Subdivision:     g.Subdivision,
		SubdivisionCode: g.SubdivisionCode,
		AccuracyRadius:  g.AccuracyRadius,
		Schema:          r.Schema,
	}
	if g.Network != nil {
		data.ASN = g.ASN
		data.ASNOrg = g.Organization
		data.Network = g.CIDR
	}

	return msgpack.Marshal(data)
}

// decodeRange deserializes a Range from msgpack
func decodeRange(startIP []byte, data []byte) (*model.Range, error) {
	var stored storedRange
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal range: %w", err)
	}

	start, err := ipcodec.BytesToIP(startIP)
	if err != nil {
		return nil, fmt.Errorf("invalid start IP: %w", err)
	}

	end, err := ipcodec.BytesToIP(stored.EndBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid end IP: %w", err)
	}

	return &model.Range{
		Start:  start,
		End:    end,
		Prefix: stored.Prefix,
		Schema: stored.Schema,
		Geo: model.Record{
			GeonameID:       stored.GeonameID,
			CountryCode:     stored.CountryCode,
			CountryName:     stored.CountryName,
			ContinentCode:   stored.ContinentCode,
			ContinentName:   stored.ContinentName,
			City:            stored.City,
			PostalCode:      stored.PostalCode,
			Latitude:        stored.Lat,
			Longitude:       stored.Lon,
			TimeZone:        stored.TimeZone,
			Subdivision:     stored.Subdivision,
			SubdivisionCode: stored.SubdivisionCode,
			AccuracyRadius:  stored.AccuracyRadius,
			Network:         model.NewNetwork(stored.ASN, stored.ASNOrg, stored.Network),
		},
	}, nil
}

// CompactDB compacts the whole key space
func (d *DB) CompactDB(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.view(func(ldb *leveldb.DB) error {
		return ldb.CompactRange(util.Range{})
	})
}
