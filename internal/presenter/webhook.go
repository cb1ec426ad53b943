package presenter

import (
	"log/slog"

	"jobredirect/internal/dispatcher"
	"jobredirect/internal/job"
	"jobredirect/internal/lifecycle"
	"jobredirect/pkg/cloudevent"
)

// Webhook queues lifecycle events for ordered delivery to an HTTP endpoint.
type Webhook struct {
	dispatcher dispatcher.Dispatcher
	url        string
	signingKey string
	events     *job.EventBuilder
	logger     *slog.Logger
}

// NewWebhook creates a webhook presenter. An empty signingKey sends unsigned events.
func NewWebhook(d dispatcher.Dispatcher, url, signingKey string, events *job.EventBuilder) *Webhook {
	return &Webhook{
		dispatcher: d,
		url:        url,
		signingKey: signingKey,
		events:     events,
		logger:     slog.With("component", "presenter.webhook"),
	}
}

func (w *Webhook) OnStatusChanged(status job.Status, message string, queuePosition *int) {
	w.OnJobStatusChanged("", status, message, queuePosition)
}

func (w *Webhook) OnDismissed() {
	w.OnJobDismissed("")
}

func (w *Webhook) OnJobStatusChanged(jobID string, status job.Status, message string, queuePosition *int) {
	w.dispatch(w.events.BuildStatusEvent(jobID, status, message, queuePosition))
}

func (w *Webhook) OnJobDismissed(jobID string) {
	w.dispatch(w.events.BuildDismissedEvent(jobID))
}

func (w *Webhook) dispatch(evt *cloudevent.CloudEvent) {
	err := w.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     evt,
		Destination: w.url,
		SigningKey:  w.signingKey,
	})
	if err != nil {
		w.logger.Warn("Lifecycle event not queued", "type", evt.Type, "jobId", evt.Subject, "error", err)
	}
}

var _ lifecycle.JobPresenter = (*Webhook)(nil)
