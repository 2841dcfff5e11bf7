// Package admin provides the gateway's ambient HTTP surface: liveness and
// readiness probes, Prometheus metrics, and a pg_stat_activity introspection
// endpoint for operators who would rather curl than connect with psql. It is
// a chi router in the teacher's style (middleware chain, JSON responses)
// scoped down to the handful of routes an infrastructure-only listener needs.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/session"
)

var startedAt = time.Now()

// Dependencies holds everything the admin routes need.
type Dependencies struct {
	Logger   zerolog.Logger
	Sessions *session.Manager
	Ready    func() bool // reports whether the gateway can accept wire connections (e.g. backend reachable)
}

// New builds the admin plane's http.Handler.
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(recoverer(deps.Logger))
	r.Use(requestLogger(deps.Logger))

	r.Get("/healthz", healthHandler)
	r.Get("/readyz", readyHandler(deps))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/pg_stat_activity", pgStatActivityHandler(deps))

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recoverer mirrors the teacher's panic-recovery middleware, adapted to this
// package's own response helper instead of the legacy handler package.
func recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("panic recovered in admin handler")
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("admin request")
		})
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"uptime": time.Since(startedAt).String(),
	})
}

func readyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := deps.Ready == nil || deps.Ready()
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		writeJSON(w, status, map[string]string{"status": state})
	}
}

// pgStatActivityHandler exposes the same connection snapshots the wire
// protocol surfaces through the pg_stat_activity virtual table, for
// operators without a psql client handy.
func pgStatActivityHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Sessions == nil {
			writeJSON(w, http.StatusOK, []session.ConnectionRecord{})
			return
		}
		writeJSON(w, http.StatusOK, deps.Sessions.GetConnections())
	}
}
