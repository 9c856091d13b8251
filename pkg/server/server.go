// Package server exposes the resolver over HTTP.
package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"georesolve/pkg/bootstrap"
	"georesolve/pkg/logging"
	"georesolve/pkg/metrics"
	"georesolve/pkg/model"
	"georesolve/pkg/resolver"
	"georesolve/pkg/util/ipcodec"
)

// Server routes lookup requests to an App
type Server struct {
	app *bootstrap.App
	log zerolog.Logger
}

// New creates a server for app
func New(app *bootstrap.App) *Server {
	return &Server{app: app, log: logging.Component("server")}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.health)
	r.Get("/lookup", s.lookup)
	r.Get("/lookup/{ip}", s.lookup)
	r.Get("/providers", s.providers)
	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.cacheStats)
		r.Delete("/", s.cacheClear)
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}

// lookupResponse is the body of /lookup; Trace is set for ?explain=true
type lookupResponse struct {
	IP     string          `json:"ip"`
	Found  bool            `json:"found"`
	Record *model.Record   `json:"record,omitempty"`
	Trace  *resolver.Trace `json:"trace,omitempty"`
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "ip")
	if raw == "" {
		raw = r.URL.Query().Get("ip")
	}
	if raw == "" {
		raw = clientIP(r)
	}

	ip, err := ipcodec.ParseIP(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid IP address", raw)
		return
	}

	resp := lookupResponse{IP: ip.String()}
	if explain := r.URL.Query().Get("explain"); explain == "1" || strings.EqualFold(explain, "true") {
		trace := s.app.Resolver.Explain(ip)
		resp.Found = trace.Found
		resp.Record = trace.Record
		resp.Trace = trace
	} else {
		rec, ok := s.app.Resolver.Resolve(ip)
		resp.Found = ok
		resp.Record = rec
	}

	status := http.StatusOK
	if !resp.Found {
		status = http.StatusNotFound
	}
	writeJSON(w, status, resp)
}

func (s *Server) providers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.app.Backends()})
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.app.Resolver.CacheStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"size":     stats.Size,
		"max_size": stats.MaxSize,
		"hit_rate": stats.HitRate(),
	})
}

func (s *Server) cacheClear(w http.ResponseWriter, _ *http.Request) {
	s.app.Resolver.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	available := 0
	for _, b := range s.app.Backends() {
		if b.Enabled && b.Available {
			available++
		}
	}
	status := http.StatusOK
	state := "ok"
	if available == 0 {
		status = http.StatusServiceUnavailable
		state = "no backends available"
	}
	writeJSON(w, status, map[string]any{"status": state, "available_backends": available})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// clientIP returns the caller address; RealIP has already applied
// X-Forwarded-For and X-Real-IP
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.String()
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, input string) {
	writeJSON(w, status, map[string]string{"error": msg, "input": input})
}
