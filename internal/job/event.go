package job

import (
	"fmt"
	"time"

	"jobredirect/pkg/cloudevent"
)

// Event types for lifecycle notifications.
const (
	EventTypeStatus    = "jobredirect.job.status"
	EventTypeDismissed = "jobredirect.job.dismissed"
)

// EventBuilder builds CloudEvents for lifecycle notifications.
type EventBuilder struct {
	source string
	userID string
}

// NewEventBuilder creates a new EventBuilder.
func NewEventBuilder(source, userID string) *EventBuilder {
	return &EventBuilder{source: source, userID: userID}
}

// BuildStatusEvent creates a status-changed event. jobID may be empty when the
// notification is not tied to a tracked job.
func (b *EventBuilder) BuildStatusEvent(jobID string, status Status, message string, queuePosition *int) *cloudevent.CloudEvent {
	data := map[string]any{
		"status":  string(status),
		"message": message,
		"userId":  b.userID,
	}
	if jobID != "" {
		data["jobId"] = jobID
	}
	if queuePosition != nil {
		data["queuePosition"] = *queuePosition
	}
	return cloudevent.New(EventTypeStatus, b.source, jobID, b.eventID(jobID), data)
}

// BuildDismissedEvent creates a dismissal event.
func (b *EventBuilder) BuildDismissedEvent(jobID string) *cloudevent.CloudEvent {
	data := map[string]any{
		"userId": b.userID,
	}
	if jobID != "" {
		data["jobId"] = jobID
	}
	return cloudevent.New(EventTypeDismissed, b.source, jobID, b.eventID(jobID), data)
}

func (b *EventBuilder) eventID(jobID string) string {
	if jobID == "" {
		jobID = b.userID
	}
	return fmt.Sprintf("%s-%d", jobID, time.Now().UnixNano())
}
