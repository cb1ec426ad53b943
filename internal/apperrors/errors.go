// Package apperrors provides structured application errors for the job controller.
//
// Every error produced by the controller is classified by a sentinel so callers can
// branch with errors.Is without knowing the concrete failure:
//
//   - ErrSubmission: the job service rejected or could not be reached at submit time.
//     The host falls back to local execution.
//   - ErrTransport: a status poll failed. Never surfaced to the user.
//   - ErrJobFailed: the job service reported the job as failed.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrSubmission = errors.New("submission error")
	ErrTransport  = errors.New("transport error")
	ErrJobFailed  = errors.New("job failed")
	ErrInternal   = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "workflow")
	Resource string // For not found errors (e.g., "job")
	Op       string // Operation that failed (e.g., "jobservice.submit")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is and
// errors.As reach either.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	msg := fmt.Sprintf("%s %s not found", resource, id)
	if id == "" {
		msg = fmt.Sprintf("no %s", resource)
	}
	return &Error{
		Sentinel: ErrNotFound,
		Message:  msg,
		Resource: resource,
	}
}

// Submission creates a submission error wrapping the cause of the failed submit.
func Submission(op string, cause error) error {
	return &Error{
		Sentinel: ErrSubmission,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Transport creates a transport error for a failed status fetch.
func Transport(op string, cause error) error {
	return &Error{
		Sentinel: ErrTransport,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// JobFailed creates an error describing a job the service reported as failed.
func JobFailed(jobID, message string) error {
	if message == "" {
		message = "Unknown error"
	}
	return &Error{
		Sentinel: ErrJobFailed,
		Message:  fmt.Sprintf("job %s failed: %s", jobID, message),
		Resource: "job",
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
