// Package statusserver exposes the tracked job over a small local HTTP API so a
// headless host can be inspected, dismissed or cancelled from outside.
package statusserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"jobredirect/internal/apperrors"
	"jobredirect/internal/dispatcher"
	"jobredirect/internal/health"
	"jobredirect/internal/job"
	"jobredirect/internal/lifecycle"
	"jobredirect/internal/presenter"
)

// Controller is the part of lifecycle.Controller the server drives.
type Controller interface {
	State() lifecycle.State
	Current() (job.Job, bool)
	Dismiss()
	CancelCurrent(ctx context.Context) error
}

// ViewSource supplies the latest presenter view.
type ViewSource interface {
	View() presenter.View
}

// StatusResponse is the GET /status body.
type StatusResponse struct {
	State string         `json:"state"`
	Job   *JobResponse   `json:"job"`
	View  presenter.View `json:"view"`
}

// JobResponse describes the tracked job.
type JobResponse struct {
	ID            string     `json:"id"`
	Status        job.Status `json:"status"`
	QueuePosition *int       `json:"queuePosition,omitempty"`
	Error         string     `json:"error,omitempty"`
	SubmittedAt   time.Time  `json:"submittedAt"`
}

// DispatcherStats is the GET /debug/dispatcher body.
type DispatcherStats struct {
	QueueDepth   int    `json:"queueDepth"`
	Queued       int64  `json:"queued"`
	Delivered    int64  `json:"delivered"`
	Failed       int64  `json:"failed"`
	Dropped      int64  `json:"dropped"`
	RetriesTotal int64  `json:"retriesTotal"`
	Breaker      string `json:"breaker"`
}

// Handler contains the status server handlers.
type Handler struct {
	controller Controller
	view       ViewSource
	health     *health.Checker
	dispatcher dispatcher.Dispatcher
}

// NewHandler creates a handler. view and d may be nil.
func NewHandler(controller Controller, view ViewSource, healthChecker *health.Checker, d dispatcher.Dispatcher) *Handler {
	return &Handler{
		controller: controller,
		view:       view,
		health:     healthChecker,
		dispatcher: d,
	}
}

// Status handles GET /status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{State: h.controller.State().String()}
	if j, ok := h.controller.Current(); ok {
		resp.Job = &JobResponse{
			ID:            j.ID,
			Status:        j.Status,
			QueuePosition: j.QueuePosition,
			Error:         j.ErrorMessage,
			SubmittedAt:   j.SubmittedAt,
		}
	}
	if h.view != nil {
		resp.View = h.view.View()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Dismiss handles POST /dismiss. Dismissing while idle is a no-op.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.controller.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /cancel. The resulting status arrives through polling.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.CancelCurrent(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DispatcherStats handles GET /debug/dispatcher
func (h *Handler) DispatcherStats(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		h.writeError(w, http.StatusNotFound, "webhook delivery not configured")
		return
	}
	s := h.dispatcher.Stats()
	h.writeJSON(w, http.StatusOK, DispatcherStats{
		QueueDepth:   s.QueueDepth,
		Queued:       s.Queued,
		Delivered:    s.Delivered,
		Failed:       s.Failed,
		Dropped:      s.Dropped,
		RetriesTotal: s.RetriesTotal,
		Breaker:      s.Breaker,
	})
}

// Livez handles GET /livez
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz. Degraded still counts as ready.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if response.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps controller errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Request failed", "error", err, "path", r.URL.Path, "status", status)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
