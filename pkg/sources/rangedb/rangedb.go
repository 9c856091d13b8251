// Package rangedb exposes a local LevelDB range database as a lookup backend.
package rangedb

import (
	"errors"
	"fmt"
	"net/netip"

	"georesolve/pkg/model"
	"georesolve/pkg/rangedb"
)

// Backend answers lookups from a range database built by rangedb-build
type Backend struct {
	name string
	db   *rangedb.DB
}

// New opens the database named by the "db" source read-only
func New(cfg model.BackendConfig) (*Backend, error) {
	path := cfg.Source(model.SourceDB)
	if path == "" {
		return nil, fmt.Errorf("range database path not configured")
	}
	db, err := rangedb.OpenWith(path, rangedb.Options{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return &Backend{name: cfg.Name, db: db}, nil
}

// NewFromDB wraps an already open database
func NewFromDB(name string, db *rangedb.DB) *Backend {
	return &Backend{name: name, db: db}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Available() bool { return b.db != nil && !b.db.IsClosed() }

// Lookup returns the stored record for the range containing ip
func (b *Backend) Lookup(ip netip.Addr) (*model.Record, error) {
	rec, err := b.db.Lookup(ip)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("range lookup failed: %w", err)
	}
	rec.Backend = b.name
	return rec, nil
}

func (b *Backend) Close() error {
	if b.db == nil || b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}
