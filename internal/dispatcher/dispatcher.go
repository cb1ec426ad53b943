// Package dispatcher provides async, ordered event delivery with buffering and retry.
package dispatcher

import (
	"context"
	"errors"

	"jobredirect/pkg/cloudevent"
)

var (
	// ErrBufferFull is returned when the dispatcher's buffer is full and the event is dropped.
	ErrBufferFull = errors.New("dispatcher buffer full, event dropped")

	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher is closed")
)

// Dispatcher handles async delivery of events.
type Dispatcher interface {
	// Dispatch queues an event for async delivery. Non-blocking.
	// Returns ErrBufferFull if the event cannot be queued.
	Dispatch(event *Event) error

	// Stats returns current dispatcher statistics.
	Stats() Stats

	// Close gracefully shuts down, attempting to deliver queued events.
	// The context deadline controls how long to wait for drain.
	Close(ctx context.Context) error
}

// Event is an event to be delivered to a destination.
type Event struct {
	Payload     *cloudevent.CloudEvent
	Destination string // webhook URL
	SigningKey  string // HMAC key for signing, empty = no signing
}

// Stats holds dispatcher statistics.
type Stats struct {
	QueueDepth   int    // current queue size
	Queued       int64  // total events queued
	Delivered    int64  // successful deliveries
	Failed       int64  // failed after retries
	Dropped      int64  // dropped due to full buffer or open circuit
	RetriesTotal int64  // total retry attempts
	Breaker      string // destination breaker state
}
