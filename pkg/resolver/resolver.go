// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package resolver answers IP lookups by routing each address through the
// matching rules and the backend fallback chain.
package resolver

import (
	"errors"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"georesolve/pkg/cache"
	"georesolve/pkg/logging"
	"georesolve/pkg/matching"
	"georesolve/pkg/metrics"
	"georesolve/pkg/model"
	"georesolve/pkg/registry"
	"georesolve/pkg/util/ipcodec"
)

// Attempt sources
const (
	SourceRule     = "rule"
	SourceFallback = "fallback"
	SourceDefault  = "default"
)

// Attempt records one backend consulted during a resolution
type Attempt struct {
	Backend string `json:"backend"`
	Source  string `json:"source"`
	Rule    string `json:"rule,omitempty"`
	Result  string `json:"result"`
	Error   string `json:"error,omitempty"`
}

// Trace explains how a resolution reached its result
type Trace struct {
	IP              string                    `json:"ip"`
	MatchedRules    []string                  `json:"matched_rules,omitempty"`
	Characteristics *matching.Characteristics `json:"characteristics,omitempty"`
	Attempts        []Attempt                 `json:"attempts"`
	Backend         string                    `json:"backend,omitempty"`
	CacheHit        bool                      `json:"cache_hit"`
	Found           bool                      `json:"found"`
	Record          *model.Record             `json:"record,omitempty"`
	Duration        time.Duration             `json:"duration_ns"`
}

// Resolver is safe for concurrent use
type Resolver struct {
	registry       *registry.Registry
	engine         *matching.Engine
	defaultBackend string
	log            zerolog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithDefaultBackend names the backend used for characteristics lookups
func WithDefaultBackend(name string) Option {
	return func(r *Resolver) { r.defaultBackend = name }
}

// WithLogger sets the resolver logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// New creates a resolver over a configured registry and rule engine
func New(reg *registry.Registry, engine *matching.Engine, opts ...Option) *Resolver {
	r := &Resolver{
		registry: reg,
		engine:   engine,
		log:      logging.Component("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the record for ip, or false when no backend in the
// chain knows the address. Backend failures are not reported separately.
func (r *Resolver) Resolve(ip netip.Addr) (*model.Record, bool) {
	t := r.resolve(ip, false)
	return t.Record, t.Found
}

// ResolveString parses s and resolves it
func (r *Resolver) ResolveString(s string) (*model.Record, bool, error) {
	ip, err := ipcodec.ParseIP(s)
	if err != nil {
		return nil, false, model.ErrInvalidIP
	}
	rec, ok := r.Resolve(ip)
	return rec, ok, nil
}

// Explain resolves ip and returns the full trace
func (r *Resolver) Explain(ip netip.Addr) *Trace {
	return r.resolve(ip, true)
}

// CacheStats returns the shared cache statistics
func (r *Resolver) CacheStats() cache.Stats {
	return r.registry.Cache().Stats()
}

// ClearCache drops all cached records and resets the statistics
func (r *Resolver) ClearCache() {
	r.registry.Cache().Clear()
}

// CharacteristicsBackend returns the backend consulted for country,
// continent and ASN conditions
func (r *Resolver) CharacteristicsBackend() string {
	if r.defaultBackend != "" {
		return r.defaultBackend
	}
	if enabled := r.registry.EnabledBackends(); len(enabled) > 0 {
		return enabled[0].Name
	}
	return ""
}

type resolution struct {
	ip    netip.Addr
	tried map[string]bool
	trace *Trace
}

func (r *Resolver) resolve(ip netip.Addr, explain bool) *Trace {
	start := time.Now()
	ip = ip.Unmap()

	res := &resolution{
		ip:    ip,
		tried: make(map[string]bool),
		trace: &Trace{IP: ip.String()},
	}
	defer func() {
		res.trace.Duration = time.Since(start)
		metrics.ResolveDurationMs.Observe(float64(res.trace.Duration) / float64(time.Millisecond))
		if res.trace.Found {
			metrics.ResolutionsTotal.WithLabelValues(metrics.OutcomeFound).Inc()
		} else {
			metrics.ResolutionsTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		}
	}()

	q := matching.NewQuery(ip, r.characteristics)
	if explain {
		defer func() {
			if q.Lookups() == 0 {
				return
			}
			if chars, ok := q.Characteristics(); ok {
				res.trace.Characteristics = &chars
			}
		}()
	}

	for rule := range r.engine.Matching(q) {
		res.trace.MatchedRules = append(res.trace.MatchedRules, rule.Name)

		if r.try(res, rule.Provider, SourceRule, rule.Name) {
			return res.trace
		}
		if rule.Fallback != "" && r.try(res, rule.Fallback, SourceFallback, rule.Name) {
			return res.trace
		}
	}

	for _, cfg := range r.registry.EnabledBackends() {
		if r.try(res, cfg.Name, SourceDefault, "") {
			return res.trace
		}
	}

	r.log.Debug().Str("ip", res.trace.IP).Int("attempts", len(res.trace.Attempts)).Msg("no backend resolved address")
	return res.trace
}

// try consults one backend unless it was already tried for this resolution
func (r *Resolver) try(res *resolution, name, source, rule string) bool {
	if res.tried[name] {
		return false
	}
	res.tried[name] = true

	attempt := Attempt{Backend: name, Source: source, Rule: rule}
	record := func(result string, err error) {
		attempt.Result = result
		if err != nil {
			attempt.Error = err.Error()
		}
		res.trace.Attempts = append(res.trace.Attempts, attempt)
		metrics.BackendLookupsTotal.WithLabelValues(name, result).Inc()
	}

	// Disabled backends are skipped before construction opens their files
	if cfg, ok := r.registry.Config(name); ok && !cfg.Enabled {
		r.log.Debug().Str("backend", name).Msg("backend disabled, skipping")
		record(metrics.ResultDisabled, nil)
		return false
	}
	b, err := r.registry.Get(name)
	if err != nil {
		r.log.Warn().Err(err).Str("backend", name).Msg("skipping backend")
		record(metrics.ResultError, err)
		return false
	}
	if !b.Available() {
		r.log.Warn().Str("backend", name).Msg("backend unavailable, skipping")
		record(metrics.ResultUnavailable, model.ErrBackendUnavailable)
		return false
	}

	rec, hit, err := b.LookupCached(res.ip)
	switch {
	case errors.Is(err, model.ErrNotFound):
		record(metrics.ResultNotFound, nil)
		return false
	case err != nil:
		r.log.Warn().Err(err).Str("backend", name).Str("ip", res.trace.IP).Msg("backend lookup failed")
		record(metrics.ResultError, err)
		return false
	}

	if rec.Backend == "" {
		rec = rec.WithBackend(name)
	}
	if hit {
		record(metrics.ResultHit, nil)
	} else {
		record(metrics.ResultFound, nil)
	}

	res.trace.Backend = name
	res.trace.CacheHit = hit
	res.trace.Found = true
	res.trace.Record = rec
	return true
}

// characteristics looks ip up on the characteristics backend through the
// shared cache
func (r *Resolver) characteristics(ip netip.Addr) *model.Record {
	name := r.CharacteristicsBackend()
	if name == "" {
		return nil
	}

	if cfg, ok := r.registry.Config(name); !ok || !cfg.Enabled {
		return nil
	}
	b, err := r.registry.Get(name)
	if err != nil || !b.Available() {
		r.log.Debug().Str("backend", name).Msg("characteristics backend unavailable")
		return nil
	}

	rec, _, err := b.LookupCached(ip)
	if err != nil {
		return nil
	}
	return rec
}
