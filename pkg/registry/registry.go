// Package registry maps backend names to constructors and owns the
// constructed, cache-wrapped backend instances.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"georesolve/pkg/cache"
	"georesolve/pkg/logging"
	"georesolve/pkg/metrics"
	"georesolve/pkg/model"
	"georesolve/pkg/provider"
	"georesolve/pkg/util/workers"
)

// Constructor builds a backend instance from its configuration
type Constructor func(cfg model.BackendConfig) (provider.Provider, error)

// Registry is safe for concurrent use. Register and Configure are
// configuration-time operations.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	configs      []model.BackendConfig
	instances    map[string]*Backend
	group        singleflight.Group

	cache    cache.Backend
	cacheTTL time.Duration
	retry    workers.RetryConfig
	log      zerolog.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithCache replaces the cache built from the cache configuration
func WithCache(c cache.Backend) Option {
	return func(r *Registry) { r.cache = c }
}

// WithLogger sets the registry logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithRetry sets the base retry policy used when opening sources.
// MaxAttempts is always derived from each backend's MaxRetries.
func WithRetry(cfg workers.RetryConfig) Option {
	return func(r *Registry) { r.retry = cfg }
}

// New creates an empty registry whose backends share one cache
func New(cacheCfg model.CacheConfig, opts ...Option) *Registry {
	r := &Registry{
		constructors: make(map[string]Constructor),
		instances:    make(map[string]*Backend),
		cacheTTL:     cacheCfg.TTL,
		retry:        workers.DefaultRetryConfig(),
		log:          logging.Component("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.New(cacheCfg)
	}
	return r
}

// Register associates name with a constructor. Registering a name again
// replaces the previous constructor.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; exists {
		r.log.Debug().Str("backend", name).Msg("replacing backend constructor")
	}
	r.constructors[name] = ctor
}

// Names returns the registered constructor names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configure replaces the backend configurations. Their order is the
// registration order used to break priority ties.
func (r *Registry) Configure(cfgs []model.BackendConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs = append([]model.BackendConfig(nil), cfgs...)
}

// Configs returns the configured backends in registration order
func (r *Registry) Configs() []model.BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]model.BackendConfig(nil), r.configs...)
}

// Config returns the configuration for name
func (r *Registry) Config(name string) (model.BackendConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cfg := range r.configs {
		if cfg.Name == name {
			return cfg, true
		}
	}
	return model.BackendConfig{}, false
}

// Known reports whether name is configured and its constructor registered
func (r *Registry) Known(name string) bool {
	cfg, ok := r.Config(name)
	if !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok = r.constructors[cfg.Kind()]
	return ok
}

// EnabledBackends returns the enabled configurations ordered by priority,
// ties kept in registration order
func (r *Registry) EnabledBackends() []model.BackendConfig {
	r.mu.RLock()
	enabled := make([]model.BackendConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}

// Get returns the backend instance for a configured name
func (r *Registry) Get(name string) (*Backend, error) {
	cfg, ok := r.Config(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, model.ErrUnknownBackend)
	}
	return r.Backend(name, cfg)
}

// Backend returns the cache-wrapped instance for (name, cfg), building it
// on first use. Concurrent callers for the same key share one
// construction. A constructor failure yields an unavailable backend, not
// an error; only an unregistered constructor is an error.
func (r *Registry) Backend(name string, cfg model.BackendConfig) (*Backend, error) {
	if cfg.Name == "" {
		cfg.Name = name
	}

	r.mu.RLock()
	ctor, ok := r.constructors[cfg.Kind()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", cfg.Kind(), model.ErrUnknownBackend)
	}

	key := name + "@" + Fingerprint(cfg)
	if b := r.instance(key); b != nil {
		return b, nil
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		if b := r.instance(key); b != nil {
			return b, nil
		}

		b := &Backend{
			name:  name,
			cfg:   cfg,
			inner: r.construct(ctor, cfg),
			cache: r.cache,
			ttl:   r.cacheTTL,
		}

		r.mu.Lock()
		r.instances[key] = b
		r.mu.Unlock()
		return b, nil
	})
	return v.(*Backend), nil
}

func (r *Registry) instance(key string) *Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[key]
}

// construct runs the constructor with retries bounded by the backend timeout
func (r *Registry) construct(ctor Constructor, cfg model.BackendConfig) provider.Provider {
	log := r.log.With().Str("backend", cfg.Name).Str("type", cfg.Kind()).Logger()

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	retry := r.retry
	retry.MaxAttempts = cfg.MaxRetries + 1
	retry.OnRetry = func(attempt int, err error) {
		log.Debug().Err(err).Int("attempt", attempt).Msg("retrying backend open")
	}

	var p provider.Provider
	err := workers.Retry(ctx, retry, func() error {
		var err error
		p, err = ctor(cfg)
		if err == nil && p == nil {
			err = errors.New("constructor returned no backend")
		}
		return err
	})
	if err != nil {
		metrics.BackendConstructionsTotal.WithLabelValues(cfg.Name, "unavailable").Inc()
		log.Warn().Err(err).Msg("backend unavailable")
		return provider.NewUnavailable(cfg.Name, err)
	}

	metrics.BackendConstructionsTotal.WithLabelValues(cfg.Name, "ok").Inc()
	log.Debug().Bool("available", p.Available()).Msg("backend constructed")
	return p
}

// Cache returns the cache shared by all backends
func (r *Registry) Cache() cache.Backend {
	return r.cache
}

// Reset closes and forgets every constructed instance
func (r *Registry) Reset() error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]*Backend)
	r.mu.Unlock()

	var errs []error
	for _, b := range instances {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every constructed instance
func (r *Registry) Close() error {
	return r.Reset()
}

// Fingerprint identifies a backend configuration
func Fingerprint(cfg model.BackendConfig) string {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(cfg); err != nil {
		return strconv.FormatUint(xxhash.Sum64String(fmt.Sprintf("%#v", cfg)), 16)
	}
	return strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16)
}
