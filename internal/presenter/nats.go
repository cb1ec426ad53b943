package presenter

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"jobredirect/internal/job"
	"jobredirect/internal/lifecycle"
	"jobredirect/pkg/cloudevent"
)

// Publisher is the subset of *nats.Conn the NATS presenter needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ConnectNATS dials the NATS server with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("jobredirect"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
}

// NATS publishes lifecycle events as CloudEvents on a subject. Publishing is
// buffered by the connection and never blocks the controller.
type NATS struct {
	pub     Publisher
	subject string
	events  *job.EventBuilder
	logger  *slog.Logger
}

// NewNATS creates a NATS presenter.
func NewNATS(pub Publisher, subject string, events *job.EventBuilder) *NATS {
	return &NATS{
		pub:     pub,
		subject: subject,
		events:  events,
		logger:  slog.With("component", "presenter.nats", "subject", subject),
	}
}

func (n *NATS) OnStatusChanged(status job.Status, message string, queuePosition *int) {
	n.OnJobStatusChanged("", status, message, queuePosition)
}

func (n *NATS) OnDismissed() {
	n.OnJobDismissed("")
}

func (n *NATS) OnJobStatusChanged(jobID string, status job.Status, message string, queuePosition *int) {
	n.publish(n.events.BuildStatusEvent(jobID, status, message, queuePosition))
}

func (n *NATS) OnJobDismissed(jobID string) {
	n.publish(n.events.BuildDismissedEvent(jobID))
}

func (n *NATS) publish(evt *cloudevent.CloudEvent) {
	data, err := evt.Encode()
	if err != nil {
		n.logger.Error("Failed to encode event", "type", evt.Type, "error", err)
		return
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		n.logger.Warn("Failed to publish event", "type", evt.Type, "jobId", evt.Subject, "error", err)
	}
}

var _ lifecycle.JobPresenter = (*NATS)(nil)
