package presenter

import (
	"log/slog"

	"jobredirect/internal/job"
	"jobredirect/internal/lifecycle"
)

// Log writes lifecycle events as structured log lines.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log presenter. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "presenter")}
}

func (l *Log) OnStatusChanged(status job.Status, message string, queuePosition *int) {
	l.OnJobStatusChanged("", status, message, queuePosition)
}

func (l *Log) OnDismissed() {
	l.OnJobDismissed("")
}

func (l *Log) OnJobStatusChanged(jobID string, status job.Status, message string, queuePosition *int) {
	attrs := []any{"jobId", jobID, "status", status}
	if queuePosition != nil {
		attrs = append(attrs, "queuePosition", *queuePosition)
	}
	if status == job.StatusFailed {
		l.logger.Warn(message, attrs...)
		return
	}
	l.logger.Info(message, attrs...)
}

func (l *Log) OnJobDismissed(jobID string) {
	l.logger.Info("Status dismissed", "jobId", jobID)
}

var _ lifecycle.JobPresenter = (*Log)(nil)
