package resolver

import (
	"errors"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georesolve/pkg/cache"
	"georesolve/pkg/matching"
	"georesolve/pkg/metrics"
	"georesolve/pkg/model"
	"georesolve/pkg/provider"
	"georesolve/pkg/registry"
	"georesolve/pkg/sources/maxmind"
	"georesolve/pkg/util/workers"
)

// stub is a configured test backend answering from a fixed table
type stub struct {
	name        string
	priority    int
	records     map[string]model.Record
	unavailable bool
	disabled    bool
	calls       atomic.Int32
	constructs  atomic.Int32
}

type fixture struct {
	reg   *registry.Registry
	lru   *cache.LRU
	stubs map[string]*stub
}

func newFixture(t *testing.T, stubs ...*stub) *fixture {
	t.Helper()

	lru := cache.NewLRU(100, time.Hour)
	fast := workers.RetryConfig{InitialDelay: time.Millisecond, Multiplier: 1}
	f := &fixture{
		reg:   registry.New(model.DefaultCacheConfig(), registry.WithCache(lru), registry.WithRetry(fast)),
		lru:   lru,
		stubs: make(map[string]*stub),
	}

	var cfgs []model.BackendConfig
	for _, s := range stubs {
		f.stubs[s.name] = s
		f.reg.Register(s.name, func(cfg model.BackendConfig) (provider.Provider, error) {
			s.constructs.Add(1)
			if s.unavailable {
				return nil, errors.New("open " + cfg.Name + ".mmdb: no such file or directory")
			}
			return &provider.Func{ProviderName: cfg.Name, Fn: func(ip netip.Addr) (*model.Record, error) {
				s.calls.Add(1)
				rec, ok := s.records[ip.String()]
				if !ok {
					return nil, model.ErrNotFound
				}
				rec.IP = ip.String()
				rec.Backend = cfg.Name
				return &rec, nil
			}}, nil
		})
		cfgs = append(cfgs, model.BackendConfig{Name: s.name, Enabled: !s.disabled, Priority: s.priority})
	}
	f.reg.Configure(cfgs)
	return f
}

func (f *fixture) resolver(t *testing.T, rules ...matching.RuleConfig) *Resolver {
	t.Helper()
	engine, err := matching.NewEngine(rules)
	require.NoError(t, err)
	require.NoError(t, engine.Validate(f.reg.Known))
	return New(f.reg, engine)
}

func rule(name string, priority int, target string, conds ...matching.ConditionConfig) matching.RuleConfig {
	return matching.RuleConfig{Name: name, Priority: priority, Provider: target, Conditions: conds}
}

func cond(typ string, values ...string) matching.ConditionConfig {
	return matching.ConditionConfig{Type: typ, Values: values}
}

var (
	googleDNS = netip.MustParseAddr("8.8.8.8")
	private   = netip.MustParseAddr("10.20.30.40")
)

func TestResolveDefaultChain(t *testing.T) {
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100, records: map[string]model.Record{
			"8.8.8.8": {CountryCode: "US", City: "Mountain View"},
		}},
		&stub{name: "ip2location", priority: 200, records: map[string]model.Record{
			"8.8.8.8": {CountryCode: "US", City: "Somewhere Else"},
		}},
	)
	r := f.resolver(t)

	rec, ok := r.Resolve(googleDNS)
	require.True(t, ok)
	assert.Equal(t, "US", rec.CountryCode)
	assert.Equal(t, "Mountain View", rec.City)
	assert.Equal(t, "geoip2", rec.Backend)

	assert.Equal(t, []string{cache.Key(googleDNS, "geoip2")}, f.lru.Keys())
	assert.Equal(t, int64(1), r.CacheStats().Misses)
	assert.Equal(t, int64(0), r.CacheStats().Hits)
	assert.Equal(t, int32(0), f.stubs["ip2location"].calls.Load())
}

func TestResolveIdempotent(t *testing.T) {
	f := newFixture(t, &stub{name: "geoip2", priority: 100, records: map[string]model.Record{
		"8.8.8.8": {CountryCode: "US", City: "Mountain View", Latitude: model.Float(37.386), Longitude: model.Float(-122.0838)},
	}})
	r := f.resolver(t)

	first, ok := r.Resolve(googleDNS)
	require.True(t, ok)

	for i := 1; i <= 3; i++ {
		again, ok := r.Resolve(googleDNS)
		require.True(t, ok)
		assert.Equal(t, first, again)

		stats := r.CacheStats()
		assert.Equal(t, int64(i), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
	}
	assert.Equal(t, int32(1), f.stubs["geoip2"].calls.Load())
}

func TestResolveRulePriority(t *testing.T) {
	all := map[string]model.Record{"8.8.8.8": {CountryCode: "US"}}
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100, records: all},
		&stub{name: "ip2location", priority: 200, records: all},
	)
	r := f.resolver(t,
		rule("R2", 20, "geoip2", cond(matching.CondIPVersion, "4")),
		rule("R1", 10, "ip2location", cond(matching.CondIPVersion, "4")),
	)

	rec, ok := r.Resolve(googleDNS)
	require.True(t, ok)
	assert.Equal(t, "ip2location", rec.Backend)
}

func TestResolveTieUsesFirstListed(t *testing.T) {
	all := map[string]model.Record{"8.8.8.8": {CountryCode: "US"}}
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100, records: all},
		&stub{name: "ip2location", priority: 200, records: all},
	)
	r := f.resolver(t,
		rule("A", 10, "ip2location", cond(matching.CondIPVersion, "4")),
		rule("B", 10, "geoip2", cond(matching.CondIPVersion, "4")),
	)

	trace := r.Explain(googleDNS)
	require.True(t, trace.Found)
	assert.Equal(t, "ip2location", trace.Backend)
	assert.Equal(t, []string{"A"}, trace.MatchedRules)
}

func TestResolveAnyRuleSkipsNonMatchingHigherPriority(t *testing.T) {
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100, records: map[string]model.Record{
			"10.20.30.40": {CountryCode: "ZZ"},
		}},
		&stub{name: "rangedb", priority: 300, records: map[string]model.Record{
			"10.20.30.40": {CountryCode: "US", City: "Internal"},
		}},
		&stub{name: "ip2region", priority: 200},
	)
	ranges := rule("private", 20, "rangedb", cond(matching.CondIPRange, "10.0.0.0/8"))
	ranges.MatchAll = matching.Bool(false)
	r := f.resolver(t,
		rule("v6", 10, "ip2region", cond(matching.CondIPVersion, "6")),
		ranges,
	)

	rec, ok := r.Resolve(private)
	require.True(t, ok)
	assert.Equal(t, "rangedb", rec.Backend)
	assert.Equal(t, "Internal", rec.City)
	assert.Equal(t, int32(0), f.stubs["ip2region"].calls.Load())
}

func TestResolveFallback(t *testing.T) {
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100, records: map[string]model.Record{
			"8.8.8.8": {CountryCode: "US"},
		}},
		&stub{name: "ip2location", priority: 200},
		&stub{name: "ip2region", priority: 300, records: map[string]model.Record{
			"8.8.8.8": {CountryCode: "US", City: "Fallback City"},
		}},
	)
	asia := rule("asia", 10, "ip2location", cond(matching.CondIPVersion, "4"))
	asia.Fallback = "ip2region"
	r := f.resolver(t, asia)

	trace := r.Explain(googleDNS)
	require.True(t, trace.Found)
	assert.Equal(t, "ip2region", trace.Backend)
	assert.Equal(t, "Fallback City", trace.Record.City)

	require.Len(t, trace.Attempts, 2)
	assert.Equal(t, Attempt{Backend: "ip2location", Source: SourceRule, Rule: "asia", Result: metrics.ResultNotFound}, trace.Attempts[0])
	assert.Equal(t, Attempt{Backend: "ip2region", Source: SourceFallback, Rule: "asia", Result: metrics.ResultFound}, trace.Attempts[1])
}

func TestResolveSkipsUnavailable(t *testing.T) {
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100, unavailable: true},
		&stub{name: "ip2location", priority: 200, records: map[string]model.Record{
			"8.8.8.8": {CountryCode: "US"},
		}},
	)
	r := f.resolver(t, rule("primary", 10, "geoip2", cond(matching.CondIPVersion, "4")))

	before := testutil.ToFloat64(metrics.BackendLookupsTotal.WithLabelValues("geoip2", metrics.ResultUnavailable))

	trace := r.Explain(googleDNS)
	require.True(t, trace.Found)
	assert.Equal(t, "ip2location", trace.Backend)
	require.Len(t, trace.Attempts, 2)
	assert.Equal(t, metrics.ResultUnavailable, trace.Attempts[0].Result)
	assert.Equal(t, SourceDefault, trace.Attempts[1].Source)

	after := testutil.ToFloat64(metrics.BackendLookupsTotal.WithLabelValues("geoip2", metrics.ResultUnavailable))
	assert.Equal(t, before+1, after)
}

func TestResolveTriesEachBackendOnce(t *testing.T) {
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100},
		&stub{name: "ip2location", priority: 200},
	)
	primary := rule("primary", 10, "geoip2", cond(matching.CondIPVersion, "4"))
	primary.Fallback = "ip2location"
	r := f.resolver(t, primary, rule("again", 20, "geoip2", cond(matching.CondIPVersion, "4")))

	trace := r.Explain(googleDNS)
	assert.False(t, trace.Found)
	assert.Len(t, trace.Attempts, 2)
	assert.Equal(t, []string{"primary", "again"}, trace.MatchedRules)
	assert.Equal(t, int32(1), f.stubs["geoip2"].calls.Load())
	assert.Equal(t, int32(1), f.stubs["ip2location"].calls.Load())
}

func TestResolveNotFoundIsNotCached(t *testing.T) {
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100},
		&stub{name: "broken", priority: 150, unavailable: true},
		&stub{name: "ip2location", priority: 200},
	)
	r := f.resolver(t)

	before := testutil.ToFloat64(metrics.ResolutionsTotal.WithLabelValues(metrics.OutcomeNotFound))

	for range 2 {
		rec, ok := r.Resolve(googleDNS)
		assert.False(t, ok)
		assert.Nil(t, rec)
	}

	stats := r.CacheStats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(4), stats.Misses)
	assert.Equal(t, int32(2), f.stubs["geoip2"].calls.Load())

	after := testutil.ToFloat64(metrics.ResolutionsTotal.WithLabelValues(metrics.OutcomeNotFound))
	assert.Equal(t, before+2, after)
}

func TestResolveCountryRuleUsesCharacteristics(t *testing.T) {
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100, records: map[string]model.Record{
			"1.0.16.1": {CountryCode: "JP"},
			"8.8.8.8":  {CountryCode: "US"},
		}},
		&stub{name: "ip2location", priority: 200, records: map[string]model.Record{
			"1.0.16.1": {CountryCode: "JP", City: "Tokyo"},
		}},
	)
	asia := rule("asian_countries", 30, "ip2location", cond(matching.CondCountry, "CN", "JP", "KR"))
	asia.Fallback = "geoip2"
	r := f.resolver(t, asia)
	assert.Equal(t, "geoip2", r.CharacteristicsBackend())

	trace := r.Explain(netip.MustParseAddr("1.0.16.1"))
	require.True(t, trace.Found)
	assert.Equal(t, "ip2location", trace.Backend)
	assert.Equal(t, "Tokyo", trace.Record.City)
	require.NotNil(t, trace.Characteristics)
	assert.Equal(t, "JP", trace.Characteristics.Country)
	assert.Equal(t, "AS", trace.Characteristics.Continent)

	// The characteristics lookup warmed the cache for the default chain
	rec, ok := r.Resolve(googleDNS)
	require.True(t, ok)
	assert.Equal(t, "geoip2", rec.Backend)
	assert.Equal(t, int32(2), f.stubs["geoip2"].calls.Load())

	trace = r.Explain(googleDNS)
	assert.True(t, trace.CacheHit)
	assert.Equal(t, int32(2), f.stubs["geoip2"].calls.Load())
}

func TestResolveDefaultBackendOption(t *testing.T) {
	f := newFixture(t,
		&stub{name: "geoip2", priority: 100},
		&stub{name: "ip2location", priority: 200},
	)
	engine, err := matching.NewEngine(nil)
	require.NoError(t, err)

	assert.Equal(t, "geoip2", New(f.reg, engine).CharacteristicsBackend())
	assert.Equal(t, "ip2location", New(f.reg, engine, WithDefaultBackend("ip2location")).CharacteristicsBackend())
}

type staticGeo map[string]model.Record

func (g staticGeo) Geo(ip netip.Addr, _ string) (*model.Record, error) {
	rec, ok := g[ip.String()]
	if !ok {
		return nil, nil
	}
	rec.IP = ip.String()
	return &rec, nil
}

func TestResolveDegradedMultiSource(t *testing.T) {
	lru := cache.NewLRU(10, time.Hour)
	reg := registry.New(model.DefaultCacheConfig(), registry.WithCache(lru))
	reg.Register("geoip2-enriched", func(cfg model.BackendConfig) (provider.Provider, error) {
		geo := staticGeo{"8.8.8.8": {CountryCode: "US"}}
		return maxmind.NewMultiFrom(cfg.Name, cfg.Locale(), geo, nil), nil
	})
	reg.Configure([]model.BackendConfig{{Name: "geoip2-enriched", Enabled: true, Priority: 100}})

	engine, err := matching.NewEngine(nil)
	require.NoError(t, err)
	r := New(reg, engine)

	b, err := reg.Get("geoip2-enriched")
	require.NoError(t, err)
	assert.True(t, b.Available())

	rec, ok := r.Resolve(googleDNS)
	require.True(t, ok)
	assert.Equal(t, "US", rec.CountryCode)
	assert.False(t, rec.Enriched())
	assert.Nil(t, rec.Network)
}

func TestResolveString(t *testing.T) {
	f := newFixture(t, &stub{name: "geoip2", priority: 100, records: map[string]model.Record{
		"8.8.8.8": {CountryCode: "US"},
	}})
	r := f.resolver(t)

	rec, ok, err := r.ResolveString(" 8.8.8.8 ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "US", rec.CountryCode)

	rec, ok, err = r.ResolveString("::ffff:8.8.8.8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "8.8.8.8", rec.IP)

	_, _, err = r.ResolveString("not-an-ip")
	assert.ErrorIs(t, err, model.ErrInvalidIP)
}

func TestClearCache(t *testing.T) {
	f := newFixture(t, &stub{name: "geoip2", priority: 100, records: map[string]model.Record{
		"8.8.8.8": {CountryCode: "US"},
	}})
	r := f.resolver(t)

	r.Resolve(googleDNS)
	r.Resolve(googleDNS)
	r.ClearCache()

	assert.Equal(t, cache.Stats{MaxSize: 100}, r.CacheStats())
}

func TestResolveSkipsDisabledRuleTargetWithoutOpening(t *testing.T) {
	f := newFixture(t,
		&stub{name: "off", priority: 50, disabled: true, unavailable: true},
		&stub{name: "geoip2", priority: 100, records: map[string]model.Record{
			"8.8.8.8": {CountryCode: "US"},
		}},
	)
	r := f.resolver(t, rule("to_off", 10, "off", cond(matching.CondIPVersion, "4")))

	trace := r.Explain(googleDNS)
	require.True(t, trace.Found)
	assert.Equal(t, "geoip2", trace.Backend)
	require.NotEmpty(t, trace.Attempts)
	assert.Equal(t, "off", trace.Attempts[0].Backend)
	assert.Equal(t, metrics.ResultDisabled, trace.Attempts[0].Result)
	assert.Empty(t, trace.Attempts[0].Error)
	assert.Equal(t, int32(0), f.stubs["off"].constructs.Load())
}

func TestResolveCountsRuleMatchesOnce(t *testing.T) {
	f := newFixture(t, &stub{name: "geoip2", priority: 100, records: map[string]model.Record{
		"8.8.8.8": {CountryCode: "US"},
	}})
	r := f.resolver(t,
		rule("counted_first", 10, "geoip2", cond(matching.CondIPVersion, "4")),
		rule("counted_never", 20, "geoip2", cond(matching.CondIPVersion, "4")),
	)

	first := metrics.RuleMatchesTotal.WithLabelValues("counted_first")
	never := metrics.RuleMatchesTotal.WithLabelValues("counted_never")
	before, beforeNever := testutil.ToFloat64(first), testutil.ToFloat64(never)

	trace := r.Explain(googleDNS)
	require.True(t, trace.Found)
	assert.Equal(t, []string{"counted_first"}, trace.MatchedRules)
	assert.Equal(t, before+1, testutil.ToFloat64(first))
	assert.Equal(t, beforeNever, testutil.ToFloat64(never), "rules after a resolved target are not evaluated")
}

func TestCharacteristicsSkipsDisabledBackend(t *testing.T) {
	f := newFixture(t,
		&stub{name: "off", priority: 50, disabled: true},
		&stub{name: "geoip2", priority: 100, records: map[string]model.Record{
			"8.8.8.8": {CountryCode: "US"},
		}},
	)
	engine, err := matching.NewEngine([]matching.RuleConfig{
		rule("us", 10, "geoip2", cond(matching.CondCountry, "US")),
	})
	require.NoError(t, err)
	r := New(f.reg, engine, WithDefaultBackend("off"))

	trace := r.Explain(googleDNS)
	require.True(t, trace.Found)
	assert.Empty(t, trace.MatchedRules, "no characteristics without an enabled backend")
	assert.Equal(t, int32(0), f.stubs["off"].constructs.Load())
}
