// Package bootstrap wires configuration, backends, rules and the
// resolver into a ready application.
package bootstrap

import (
	"errors"
	"fmt"

	"georesolve/pkg/cache"
	"georesolve/pkg/config"
	"georesolve/pkg/logging"
	"georesolve/pkg/matching"
	"georesolve/pkg/model"
	"georesolve/pkg/provider"
	"georesolve/pkg/registry"
	"georesolve/pkg/resolver"
	"georesolve/pkg/sources/ip2location"
	"georesolve/pkg/sources/ip2region"
	"georesolve/pkg/sources/iptoasn"
	"georesolve/pkg/sources/maxmind"
	"georesolve/pkg/sources/rangedb"
)

// Built-in backend types
const (
	TypeGeoIP2         = "geoip2"
	TypeGeoIP2Enriched = "geoip2-enriched"
	TypeIP2Location    = "ip2location"
	TypeIP2Region      = "ip2region"
	TypeRangeDB        = "rangedb"
	TypeIPToASN        = "iptoasn"
)

// App holds the wired components
type App struct {
	Config   *config.Config
	Registry *registry.Registry
	Engine   *matching.Engine
	Resolver *resolver.Resolver
	Cache    cache.Backend
}

// BackendStatus describes one configured backend
type BackendStatus struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Enabled     bool   `json:"enabled"`
	Priority    int    `json:"priority"`
	Available   bool   `json:"available"`
	Degraded    bool   `json:"degraded,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RegisterBuiltins registers the constructors for every built-in type
func RegisterBuiltins(reg *registry.Registry) {
	reg.Register(TypeGeoIP2, adapt(maxmind.NewSingle))
	reg.Register(TypeGeoIP2Enriched, adapt(maxmind.NewMulti))
	reg.Register(TypeIP2Location, adapt(ip2location.New))
	reg.Register(TypeIP2Region, adapt(ip2region.New))
	reg.Register(TypeRangeDB, adapt(rangedb.New))
	reg.Register(TypeIPToASN, adapt(iptoasn.New))
}

// adapt keeps a failed constructor from returning a typed nil provider
func adapt[P provider.Provider](fn func(model.BackendConfig) (P, error)) registry.Constructor {
	return func(cfg model.BackendConfig) (provider.Provider, error) {
		p, err := fn(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Option customizes Build
type Option func(*options)

type options struct {
	registryOpts []registry.Option
	register     func(*registry.Registry)
}

// WithRegistryOptions passes options to the registry
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *options) { o.registryOpts = append(o.registryOpts, opts...) }
}

// WithConstructors replaces the built-in constructors
func WithConstructors(register func(*registry.Registry)) Option {
	return func(o *options) { o.register = register }
}

// Build wires an App from cfg. Unknown backend types and rules naming
// unknown backends are load-time errors; backends whose files are
// missing are not.
func Build(cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{register: RegisterBuiltins}
	for _, opt := range opts {
		opt(o)
	}

	reg := registry.New(cfg.CacheSettings(), o.registryOpts...)
	o.register(reg)
	reg.Configure(cfg.Backends())

	registered := make(map[string]bool)
	for _, name := range reg.Names() {
		registered[name] = true
	}
	var errs []error
	for _, b := range reg.Configs() {
		if !registered[b.Kind()] {
			errs = append(errs, fmt.Errorf("provider %q: type %q: %w", b.Name, b.Kind(), model.ErrUnknownBackend))
		}
	}

	engine, err := matching.NewEngine(cfg.MatchingRules)
	if err != nil {
		return nil, err
	}
	if err := engine.Validate(reg.Known); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var resolverOpts []resolver.Option
	if _, ok := reg.Config(cfg.DefaultProvider); ok {
		resolverOpts = append(resolverOpts, resolver.WithDefaultBackend(cfg.DefaultProvider))
	} else if cfg.DefaultProvider != "" {
		log := logging.Component("bootstrap")
		log.Warn().Str("provider", cfg.DefaultProvider).
			Msg("default provider not configured, using first enabled backend")
	}

	return &App{
		Config:   cfg,
		Registry: reg,
		Engine:   engine,
		Resolver: resolver.New(reg, engine, resolverOpts...),
		Cache:    reg.Cache(),
	}, nil
}

// Backends constructs every enabled backend and reports the state of
// every configured one. Disabled backends are never opened.
func (a *App) Backends() []BackendStatus {
	var out []BackendStatus
	for _, cfg := range a.Registry.Configs() {
		st := BackendStatus{
			Name:        cfg.Name,
			Type:        cfg.Kind(),
			Enabled:     cfg.Enabled,
			Priority:    cfg.Priority,
			Description: cfg.Description,
		}
		if !cfg.Enabled {
			out = append(out, st)
			continue
		}
		b, err := a.Registry.Get(cfg.Name)
		if err != nil {
			st.Error = err.Error()
			out = append(out, st)
			continue
		}
		st.Available = b.Available()
		switch inner := b.Unwrap().(type) {
		case *provider.Unavailable:
			st.Error = inner.Err().Error()
		case *maxmind.Multi:
			st.Degraded = inner.Degraded()
			if inner.NetworkError() != nil {
				st.Error = inner.NetworkError().Error()
			}
		}
		out = append(out, st)
	}
	return out
}

// Close releases every opened backend
func (a *App) Close() error {
	return a.Registry.Close()
}
