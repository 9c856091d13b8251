package registry

import (
	"net/netip"
	"time"

	"georesolve/pkg/cache"
	"georesolve/pkg/metrics"
	"georesolve/pkg/model"
	"georesolve/pkg/provider"
)

// Backend is a constructed backend behind the shared lookup cache
type Backend struct {
	name  string
	cfg   model.BackendConfig
	inner provider.Provider
	cache cache.Backend
	ttl   time.Duration
}

func (b *Backend) Name() string { return b.name }

// Config returns the configuration the instance was built from
func (b *Backend) Config() model.BackendConfig { return b.cfg }

// Available reports whether the underlying sources were opened
func (b *Backend) Available() bool { return b.inner.Available() }

// Unwrap returns the uncached backend
func (b *Backend) Unwrap() provider.Provider { return b.inner }

// Lookup satisfies provider.Provider through the cache
func (b *Backend) Lookup(ip netip.Addr) (*model.Record, error) {
	rec, _, err := b.LookupCached(ip)
	return rec, err
}

// LookupCached checks the cache under (ip, name) before asking the
// backend. Only found records are stored.
func (b *Backend) LookupCached(ip netip.Addr) (rec *model.Record, hit bool, err error) {
	key := cache.Key(ip, b.name)
	if rec, ok := b.cache.Get(key); ok {
		metrics.CacheHitsTotal.Inc()
		return rec, true, nil
	}
	metrics.CacheMissesTotal.Inc()

	rec, err = b.inner.Lookup(ip)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, model.ErrNotFound
	}

	b.cache.Set(key, rec, b.ttl)
	return rec, false, nil
}

func (b *Backend) Close() error { return b.inner.Close() }
