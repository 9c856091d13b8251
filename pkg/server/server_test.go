package server

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georesolve/pkg/bootstrap"
	"georesolve/pkg/config"
	"georesolve/pkg/model"
	"georesolve/pkg/provider"
	"georesolve/pkg/registry"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	app, err := bootstrap.Build(config.Default(), bootstrap.WithConstructors(func(reg *registry.Registry) {
		static := func(b model.BackendConfig) (provider.Provider, error) {
			return &provider.Func{ProviderName: b.Name, Fn: func(ip netip.Addr) (*model.Record, error) {
				if ip.Is6() {
					return nil, model.ErrNotFound
				}
				return &model.Record{IP: ip.String(), CountryCode: "DE", City: "Berlin", Backend: b.Name}, nil
			}}, nil
		}
		reg.Register(bootstrap.TypeGeoIP2, static)
		reg.Register(bootstrap.TypeGeoIP2Enriched, static)
		reg.Register(bootstrap.TypeIP2Location, static)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	srv := httptest.NewServer(New(app).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	}
	return resp.StatusCode
}

func TestLookup(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
		ip     string
		found  bool
	}{
		{name: "path parameter", path: "/lookup/81.2.69.142", status: http.StatusOK, ip: "81.2.69.142", found: true},
		{name: "query parameter", path: "/lookup?ip=81.2.69.160", status: http.StatusOK, ip: "81.2.69.160", found: true},
		{name: "forwarded client", path: "/lookup", header: map[string]string{"X-Forwarded-For": "203.0.113.9"}, status: http.StatusOK, ip: "203.0.113.9", found: true},
		{name: "no data", path: "/lookup/2001:db8::1", status: http.StatusNotFound, ip: "2001:db8::1"},
		{name: "mapped address", path: "/lookup/::ffff:81.2.69.142", status: http.StatusOK, ip: "81.2.69.142", found: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+tt.path, nil)
			require.NoError(t, err)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}

			var body lookupResponse
			assert.Equal(t, tt.status, getJSON(t, req, &body))
			assert.Equal(t, tt.ip, body.IP)
			assert.Equal(t, tt.found, body.Found)
			if tt.found {
				require.NotNil(t, body.Record)
				assert.Equal(t, "Berlin", body.Record.City)
			}
			assert.Nil(t, body.Trace)
		})
	}
}

func TestLookupInvalidIP(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/lookup/not-an-ip", nil)
	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, req, &body))
	assert.Equal(t, "invalid IP address", body["error"])
	assert.Equal(t, "not-an-ip", body["input"])
}

func TestLookupExplain(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/lookup/10.1.2.3?explain=true", nil)
	var body lookupResponse
	require.Equal(t, http.StatusOK, getJSON(t, req, &body))
	require.NotNil(t, body.Trace)
	assert.Equal(t, []string{"private_networks"}, body.Trace.MatchedRules)
	assert.Equal(t, "geoip2", body.Trace.Backend)
	assert.False(t, body.Trace.CacheHit)
	assert.NotEmpty(t, body.Trace.Attempts)
}

func TestCacheEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for range 2 {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/lookup/10.0.0.1", nil)
		require.Equal(t, http.StatusOK, getJSON(t, req, nil))
	}

	stats := func() map[string]float64 {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/cache/stats", nil)
		var body map[string]float64
		require.Equal(t, http.StatusOK, getJSON(t, req, &body))
		return body
	}

	s := stats()
	assert.Equal(t, float64(1), s["hits"])
	assert.Equal(t, float64(1), s["misses"])
	assert.Equal(t, float64(1), s["size"])
	assert.InDelta(t, 0.5, s["hit_rate"], 0.001)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/cache", nil)
	assert.Equal(t, http.StatusNoContent, getJSON(t, req, nil))

	s = stats()
	assert.Equal(t, float64(0), s["size"])
	assert.Equal(t, float64(0), s["hits"])
}

func TestProvidersAndHealth(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/providers", nil)
	var body struct {
		Providers []bootstrap.BackendStatus `json:"providers"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, req, &body))
	require.Len(t, body.Providers, 3)
	for _, p := range body.Providers {
		// disabled providers are reported but never opened
		assert.Equal(t, p.Enabled, p.Available, p.Name)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, req, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(2), health["available_backends"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
