// Package handlers exposes the pipeline control surface over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mdon/mailtrack/internal/httputil"
	"github.com/mdon/mailtrack/internal/logging"
	"github.com/mdon/mailtrack/internal/poller"
	"github.com/mdon/mailtrack/internal/recovery"
)

// PollerControl is the poller surface the handlers drive.
type PollerControl interface {
	Status() poller.Status
	Pause() error
	Resume() error
	ForceCycle(ctx context.Context) error
}

// DeadLetterControl is the recovery surface the handlers drive.
type DeadLetterControl interface {
	Drain(ctx context.Context, opts recovery.Options) (recovery.Result, error)
	Delete(ctx context.Context, receiptHandles []string) (int, error)
}

// StorePinger checks the backing store for readiness probes.
type StorePinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	poller PollerControl
	dlq    DeadLetterControl
	store  StorePinger
	log    *logging.Logger
}

func NewHandler(p PollerControl, dlq DeadLetterControl, store StorePinger, log *logging.Logger) *Handler {
	return &Handler{poller: p, dlq: dlq, store: store, log: log}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /readyz. Readiness requires the store to answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.ErrorContext(r.Context(), "readiness check failed", "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// PollerStatus handles GET /api/v1/poller/status.
func (h *Handler) PollerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.poller.Status())
}

// PollerPause handles POST /api/v1/poller/pause.
func (h *Handler) PollerPause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.poller.Pause(); err != nil {
		httputil.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// PollerResume handles POST /api/v1/poller/resume.
func (h *Handler) PollerResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.poller.Resume(); err != nil {
		httputil.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// PollerForceCycle handles POST /api/v1/poller/force-cycle.
func (h *Handler) PollerForceCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.poller.ForceCycle(r.Context()); err != nil {
		// The cycle ran into a non-fatal condition; report it but keep
		// the 200 family since the poller itself is fine.
		h.log.WarnContext(r.Context(), "forced cycle reported an error", "error", err)
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "completed_with_errors",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// DrainRequest is the body of POST /api/v1/dlq/drain.
type DrainRequest struct {
	BatchSize   int  `json:"batch_size"`
	DeleteAfter bool `json:"delete_after"`
	MaxBatches  int  `json:"max_batches"`
}

// DLQDrain handles POST /api/v1/dlq/drain.
func (h *Handler) DLQDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req := DrainRequest{BatchSize: 10, DeleteAfter: true}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.dlq.Drain(r.Context(), recovery.Options{
		BatchSize:   req.BatchSize,
		DeleteAfter: req.DeleteAfter,
		MaxBatches:  req.MaxBatches,
	})
	if err != nil {
		h.log.ErrorContext(r.Context(), "dead-letter drain failed", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// DeleteRequest is the body of POST /api/v1/dlq/delete.
type DeleteRequest struct {
	ReceiptHandles []string `json:"receipt_handles"`
}

// DLQDelete handles POST /api/v1/dlq/delete.
func (h *Handler) DLQDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ReceiptHandles) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "receipt_handles is required")
		return
	}

	deleted, err := h.dlq.Delete(r.Context(), req.ReceiptHandles)
	if err != nil {
		h.log.ErrorContext(r.Context(), "dead-letter delete failed", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
