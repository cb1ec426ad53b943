package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"jobredirect/internal/apperrors"
)

// Hook replaces the host's "queue prompt" action.
type Hook struct {
	host       Host
	controller *Controller
	logger     *slog.Logger
}

// NewHook creates the submit hook for host.
func NewHook(host Host, controller *Controller) *Hook {
	return &Hook{
		host:       host,
		controller: controller,
		logger:     slog.With("component", "hook"),
	}
}

// QueuePrompt redirects the host's current work to the job service. It returns
// false when the job was submitted and local execution must be suppressed, and true
// after alerting the user when the host should fall back to running locally.
func (h *Hook) QueuePrompt(ctx context.Context) bool {
	payload, err := h.host.SerializeWork(ctx)
	if err == nil {
		err = h.controller.Submit(ctx, payload)
	}
	if err == nil {
		return false
	}

	h.logger.Warn("Falling back to local execution", "error", err)
	h.host.Alert("Failed to submit job: " + reason(err) + "\n\nFalling back to local execution...")
	return true
}

// reason strips the operation prefix from structured errors.
func reason(err error) string {
	var ae *apperrors.Error
	if errors.As(err, &ae) && ae.Cause != nil {
		return ae.Cause.Error()
	}
	return err.Error()
}
