package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolution outcomes
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
)

// Backend lookup results
const (
	ResultHit         = "cache_hit"
	ResultFound       = "found"
	ResultNotFound    = "not_found"
	ResultError       = "error"
	ResultUnavailable = "unavailable"
	ResultDisabled    = "disabled"
)

var (
	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "georesolve_resolutions_total",
		Help: "Total resolution calls by outcome",
	}, []string{"outcome"})
	ResolveDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "georesolve_resolve_duration_ms",
		Help:    "Resolution duration in milliseconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 50},
	})
	BackendLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "georesolve_backend_lookups_total",
		Help: "Backend lookups by backend and result",
	}, []string{"backend", "result"})
	RuleMatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "georesolve_rule_matches_total",
		Help: "Matching rules selected, by rule name",
	}, []string{"rule"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "georesolve_cache_hits_total",
		Help: "Total lookup cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "georesolve_cache_misses_total",
		Help: "Total lookup cache misses",
	})
	BackendConstructionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "georesolve_backend_constructions_total",
		Help: "Backend instances built by the registry, by backend and status",
	}, []string{"backend", "status"})
)

func init() {
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(ResolveDurationMs)
	prometheus.MustRegister(BackendLookupsTotal)
	prometheus.MustRegister(RuleMatchesTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(BackendConstructionsTotal)
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
