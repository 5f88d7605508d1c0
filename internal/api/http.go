// Package api serves the worker's observability surface: liveness,
// Prometheus metrics, and a status endpoint reporting the worker's
// presence record (identity, monitored queues, busy/idle, in-flight
// jobs).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelhorn/pgmq-worker/pkg/wakeup"
)

// StatusFunc produces the current presence record. The wake-up service's
// Snapshot satisfies it; a polling-only deployment supplies a static one.
type StatusFunc func(ctx context.Context) (wakeup.PresenceRecord, error)

const statusTimeout = 2 * time.Second

func NewServer(addr string, status StatusFunc) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()

		rec, err := status(ctx)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "status unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}

// ---------- helpers ----------

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": fmt.Sprintf(format, args...),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
