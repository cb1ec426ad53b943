// Package job defines the remote job model tracked by the controller and its wire
// representation on the job service API.
package job

import (
	"fmt"
	"time"
)

// Status is the lifecycle status reported by the job service.
type Status string

// Status values as they appear on the wire.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether no further transitions follow s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown job status %q", v)
	}
	return s, nil
}

// Priority mirrors the job service priority levels. Lower is more urgent.
type Priority int

const (
	PriorityInstructor Priority = 0
	PriorityHigh       Priority = 1
	PriorityNormal     Priority = 2
	PriorityLow        Priority = 3
)

// Job is the unit of remote work currently being tracked.
type Job struct {
	ID            string
	Status        Status
	QueuePosition *int   // only meaningful while Pending
	ErrorMessage  string // only set when Failed
	SubmittedAt   time.Time
}

// Apply folds a status snapshot into the job, keeping the field invariants:
// queue position only while pending, error message only when failed.
func (j *Job) Apply(s *Snapshot) {
	j.Status = s.Status
	j.QueuePosition = nil
	j.ErrorMessage = ""
	switch s.Status {
	case StatusPending:
		j.QueuePosition = s.QueuePosition
	case StatusFailed:
		j.ErrorMessage = s.Error
	}
}

// Submission is the outcome of a successful submit.
type Submission struct {
	ID            string
	QueuePosition *int
}

// Snapshot is one status observation fetched for a job.
type Snapshot struct {
	JobID         string
	Status        Status
	QueuePosition *int
	Error         string
	EstimatedWait *time.Duration
}
