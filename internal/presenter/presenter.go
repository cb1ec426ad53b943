// Package presenter provides lifecycle.Presenter implementations: structured logs,
// an in-memory view for the status server, NATS and webhook event publishers, and
// a fan-out that combines them.
package presenter

import (
	"jobredirect/internal/job"
	"jobredirect/internal/lifecycle"
)

// Multi forwards every event to each presenter in order.
type Multi []lifecycle.Presenter

// NewMulti drops nil entries.
func NewMulti(presenters ...lifecycle.Presenter) Multi {
	m := make(Multi, 0, len(presenters))
	for _, p := range presenters {
		if p != nil {
			m = append(m, p)
		}
	}
	return m
}

func (m Multi) OnStatusChanged(status job.Status, message string, queuePosition *int) {
	m.OnJobStatusChanged("", status, message, queuePosition)
}

func (m Multi) OnDismissed() {
	m.OnJobDismissed("")
}

func (m Multi) OnJobStatusChanged(jobID string, status job.Status, message string, queuePosition *int) {
	for _, p := range m {
		if jp, ok := p.(lifecycle.JobPresenter); ok {
			jp.OnJobStatusChanged(jobID, status, message, queuePosition)
			continue
		}
		p.OnStatusChanged(status, message, queuePosition)
	}
}

func (m Multi) OnJobDismissed(jobID string) {
	for _, p := range m {
		if jp, ok := p.(lifecycle.JobPresenter); ok {
			jp.OnJobDismissed(jobID)
			continue
		}
		p.OnDismissed()
	}
}

var _ lifecycle.JobPresenter = Multi(nil)
