// Package provider defines the contract every lookup backend satisfies.
package provider

import (
	"fmt"
	"net/netip"

	"georesolve/pkg/model"
)

// Provider answers IP lookups from one data source.
//
// Lookup returns model.ErrNotFound when the source has no data for ip;
// any other error is a per-lookup failure. Available reports whether the
// required sources were opened at construction and never does I/O.
type Provider interface {
	Name() string
	Lookup(ip netip.Addr) (*model.Record, error)
	Available() bool
	Close() error
}

// Unavailable is a placeholder for a backend whose sources failed to open
type Unavailable struct {
	name string
	err  error
}

// NewUnavailable wraps the construction error for name
func NewUnavailable(name string, err error) *Unavailable {
	return &Unavailable{name: name, err: err}
}

func (u *Unavailable) Name() string { return u.name }

func (u *Unavailable) Lookup(netip.Addr) (*model.Record, error) {
	return nil, u.Err()
}

func (u *Unavailable) Available() bool { return false }

func (u *Unavailable) Close() error { return nil }

// Err returns the construction failure, wrapped as ErrBackendUnavailable
func (u *Unavailable) Err() error {
	if u.err == nil {
		return fmt.Errorf("%s: %w", u.name, model.ErrBackendUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", u.name, model.ErrBackendUnavailable, u.err)
}

// Func adapts a plain function into an always-available Provider
type Func struct {
	ProviderName string
	Fn           func(ip netip.Addr) (*model.Record, error)
}

func (f *Func) Name() string { return f.ProviderName }

func (f *Func) Lookup(ip netip.Addr) (*model.Record, error) {
	return f.Fn(ip)
}

func (f *Func) Available() bool { return true }

func (f *Func) Close() error { return nil }
