package job

import (
	"encoding/json"
	"time"
)

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	UserID   string          `json:"user_id"`
	Workflow json.RawMessage `json:"workflow"`
	Priority Priority        `json:"priority"`
	Metadata SubmitMetadata  `json:"metadata"`
}

// SubmitMetadata is attached to every submission.
type SubmitMetadata struct {
	SubmittedAt     string `json:"submitted_at"`
	Frontend        string `json:"frontend"`
	ClientRequestID string `json:"client_request_id,omitempty"`
}

// SubmitResponse is the success body of POST /jobs.
type SubmitResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status,omitempty"`
	PositionInQueue *int   `json:"position_in_queue,omitempty"`
}

// MaxEstimatedWait caps the wait estimate taken from a status response.
const MaxEstimatedWait = 7 * 24 * time.Hour

// StatusResponse is the body of GET /jobs/{id}.
type StatusResponse struct {
	ID                string   `json:"id,omitempty"`
	Status            string   `json:"status"`
	PositionInQueue   *int     `json:"position_in_queue,omitempty"`
	Error             string   `json:"error,omitempty"`
	EstimatedWaitTime *float64 `json:"estimated_wait_time,omitempty"` // seconds
}

// Snapshot converts the response into a Snapshot for the requested jobID.
// When the service echoes a different id the snapshot carries the echoed one,
// so the controller discards it as stale.
func (r *StatusResponse) Snapshot(jobID string) (*Snapshot, error) {
	status, err := ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}
	if r.ID != "" {
		jobID = r.ID
	}
	snap := &Snapshot{
		JobID:         jobID,
		Status:        status,
		QueuePosition: r.PositionInQueue,
		Error:         r.Error,
	}
	if r.EstimatedWaitTime != nil && *r.EstimatedWaitTime >= 0 {
		wait := MaxEstimatedWait
		if secs := *r.EstimatedWaitTime; secs < MaxEstimatedWait.Seconds() {
			wait = time.Duration(secs * float64(time.Second))
		}
		snap.EstimatedWait = &wait
	}
	return snap, nil
}

// ErrorResponse is the error body returned by the job service.
type ErrorResponse struct {
	Detail any    `json:"detail"`
	Error  string `json:"error"`
}
