package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mdon/mailtrack/internal/handlers"
	"github.com/mdon/mailtrack/internal/middleware"
)

// NewRouter constructs a ServeMux with the control API routes registered.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Poller control surface
	mux.HandleFunc("/api/v1/poller/status", h.PollerStatus)
	mux.HandleFunc("/api/v1/poller/pause", h.PollerPause)
	mux.HandleFunc("/api/v1/poller/resume", h.PollerResume)
	mux.HandleFunc("/api/v1/poller/force-cycle", h.PollerForceCycle)

	// Dead-letter recovery
	mux.HandleFunc("/api/v1/dlq/drain", h.DLQDrain)
	mux.HandleFunc("/api/v1/dlq/delete", h.DLQDelete)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
