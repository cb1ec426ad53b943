// Package lifecycle owns the state machine for one remotely executed job: it
// submits work, follows the job through polling, tells the presenter about every
// transition, and asks the host to refresh once results are ready.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jobredirect/internal/apperrors"
	"jobredirect/internal/job"
	"jobredirect/internal/observability"
)

// Presenter messages.
const (
	MessageSubmitted = "Job submitted to queue"
	MessageQueued    = "Job queued"
	MessageRunning   = "Processing your workflow"
	MessageCompleted = "Job completed"
	MessageCancelled = "Job cancelled"

	failedPrefix   = "Job failed: "
	unknownFailure = "Unknown error"
)

const refreshTimeout = 30 * time.Second

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("controller closed")

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// Options configures a Controller.
type Options struct {
	UserID       string
	RefreshDelay time.Duration          // delay between completion and host refresh
	Metrics      *observability.Metrics // may be nil
}

// Controller tracks at most one remote job at a time.
type Controller struct {
	service   JobService
	poller    StatusPoller
	presenter Presenter
	refresher Refresher
	opts      Options
	logger    *slog.Logger

	// submitMu serialises submissions; mu guards everything below and is never
	// held across a network call.
	submitMu sync.Mutex

	mu         sync.Mutex
	submitting bool
	current    *job.Job
	refreshes  map[int]*time.Timer
	nextTimer  int
	refreshWG  sync.WaitGroup
	closed     bool
}

// NewController wires a controller. The poller must only ever be driven by this
// controller.
func NewController(service JobService, p StatusPoller, presenter Presenter, refresher Refresher, opts Options) *Controller {
	if opts.RefreshDelay < 0 {
		opts.RefreshDelay = 0
	}
	return &Controller{
		service:   service,
		poller:    p,
		presenter: presenter,
		refresher: refresher,
		opts:      opts,
		logger:    slog.With("component", "lifecycle"),
		refreshes: make(map[int]*time.Timer),
	}
}

// Submit sends payload to the job service and, on success, starts tracking the new
// job, superseding any job tracked so far. On failure the controller returns to the
// state it was in and the error is returned; it wraps apperrors.ErrSubmission when
// the service rejected or could not be reached.
func (c *Controller) Submit(ctx context.Context, payload json.RawMessage) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.submitting = true
	c.mu.Unlock()

	start := time.Now()
	sub, err := c.service.Submit(ctx, payload, c.opts.UserID)
	c.opts.Metrics.RecordSubmission(ctx, err == nil, time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false

	if err != nil {
		c.logger.Warn("Job submission failed", "error", err)
		return err
	}
	if c.closed {
		c.logger.Warn("Controller closed during submission, job not tracked", "jobId", sub.ID)
		return ErrClosed
	}

	if c.current != nil {
		c.logger.Info("Superseding tracked job", "jobId", c.current.ID, "next", sub.ID)
		c.poller.Stop()
		c.endTracking("superseded")
	}

	c.current = &job.Job{
		ID:            sub.ID,
		Status:        job.StatusPending,
		QueuePosition: sub.QueuePosition,
		SubmittedAt:   start,
	}
	c.opts.Metrics.RecordTrackingStarted(ctx)
	c.logger.Info("Tracking job", "jobId", sub.ID, "queuePosition", derefPosition(sub.QueuePosition))

	c.notify(sub.ID, job.StatusPending, MessageSubmitted, sub.QueuePosition)
	c.poller.Start(sub.ID, c.updateHandler(sub.ID), c.transportErrorHandler(sub.ID))
	return nil
}

// Dismiss stops tracking regardless of status and tells the presenter to hide.
// A host refresh already scheduled for a completed job still runs.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var jobID string
	if c.current != nil {
		jobID = c.current.ID
		c.poller.Stop()
		c.endTracking("dismissed")
	}

	c.logger.Info("Dismissed", "jobId", jobID)
	if jp, ok := c.presenter.(JobPresenter); ok {
		jp.OnJobDismissed(jobID)
		return
	}
	c.presenter.OnDismissed()
}

// CancelCurrent asks the job service to cancel the tracked job. The resulting
// status is picked up by polling.
func (c *Controller) CancelCurrent(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return apperrors.NotFound("job", "")
	}
	jobID := c.current.ID
	c.mu.Unlock()

	return c.service.Cancel(ctx, jobID)
}

// Current returns a copy of the tracked job.
func (c *Controller) Current() (job.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return job.Job{}, false
	}
	j := *c.current
	if j.QueuePosition != nil {
		pos := *j.QueuePosition
		j.QueuePosition = &pos
	}
	return j, true
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.submitting:
		return StateSubmitting
	case c.current != nil:
		return StateTracking
	default:
		return StateIdle
	}
}

// Close stops polling and cancels refreshes that have not started yet, then waits
// for running refreshes. Submit fails with ErrClosed afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.current != nil {
		c.poller.Stop()
		c.endTracking("closed")
	}
	for id, t := range c.refreshes {
		if t.Stop() {
			c.refreshWG.Done()
		}
		delete(c.refreshes, id)
	}
	c.mu.Unlock()

	c.refreshWG.Wait()
}

func (c *Controller) updateHandler(jobID string) func(*job.Snapshot) {
	return func(snap *job.Snapshot) {
		c.handleUpdate(jobID, snap)
	}
}

func (c *Controller) transportErrorHandler(jobID string) func(error) {
	logger := c.logger.With("jobId", jobID)
	return func(err error) {
		// Polling failures never change tracking state.
		logger.Debug("Status unavailable, keeping last known status", "error", err)
	}
}

func (c *Controller) handleUpdate(polledID string, snap *job.Snapshot) {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.ID != polledID || snap.JobID != polledID {
		c.opts.Metrics.RecordStaleUpdate(ctx)
		c.logger.Debug("Discarding stale status", "jobId", snap.JobID, "polled", polledID)
		return
	}

	c.current.Apply(snap)
	c.opts.Metrics.RecordTransition(ctx, string(snap.Status))

	switch snap.Status {
	case job.StatusPending:
		c.notify(polledID, job.StatusPending, queuedMessage(snap.EstimatedWait), c.current.QueuePosition)
	case job.StatusRunning:
		c.notify(polledID, job.StatusRunning, MessageRunning, nil)
	case job.StatusCompleted:
		c.poller.Stop()
		c.endTracking(string(snap.Status))
		c.logger.Info("Job completed", "jobId", polledID)
		c.notify(polledID, job.StatusCompleted, MessageCompleted, nil)
		c.scheduleRefresh(polledID)
	case job.StatusFailed:
		c.poller.Stop()
		c.endTracking(string(snap.Status))
		c.logger.Warn("Job failed", "jobId", polledID, "error", apperrors.JobFailed(polledID, snap.Error))
		c.notify(polledID, job.StatusFailed, failedMessage(snap.Error), nil)
	case job.StatusCancelled:
		c.poller.Stop()
		c.endTracking(string(snap.Status))
		c.logger.Info("Job cancelled", "jobId", polledID)
		c.notify(polledID, job.StatusCancelled, MessageCancelled, nil)
	}
}

// notify hands one event to the presenter. Callers hold c.mu.
func (c *Controller) notify(jobID string, status job.Status, message string, queuePosition *int) {
	if jp, ok := c.presenter.(JobPresenter); ok {
		jp.OnJobStatusChanged(jobID, status, message, queuePosition)
		return
	}
	c.presenter.OnStatusChanged(status, message, queuePosition)
}

// endTracking clears the job slot. Callers hold c.mu.
func (c *Controller) endTracking(reason string) {
	c.opts.Metrics.RecordTrackingEnded(context.Background(), reason, time.Since(c.current.SubmittedAt).Seconds())
	c.current = nil
}

// scheduleRefresh arms a one-shot host refresh. Callers hold c.mu.
func (c *Controller) scheduleRefresh(jobID string) {
	if c.refresher == nil || c.closed {
		return
	}
	id := c.nextTimer
	c.nextTimer++

	c.refreshWG.Add(1)
	c.refreshes[id] = time.AfterFunc(c.opts.RefreshDelay, func() {
		defer c.refreshWG.Done()

		c.mu.Lock()
		delete(c.refreshes, id)
		c.mu.Unlock()

		c.refresh(jobID)
	})
}

func (c *Controller) refresh(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	err := c.refresher.RefreshResults(ctx)
	c.opts.Metrics.RecordHostRefresh(ctx, err == nil)
	if err != nil {
		c.logger.Warn("Host refresh failed", "jobId", jobID, "error", err)
		return
	}
	c.logger.Info("Host results refreshed", "jobId", jobID)
}

func queuedMessage(wait *time.Duration) string {
	if wait == nil || *wait <= 0 {
		return MessageQueued
	}
	return fmt.Sprintf("%s, estimated wait %s", MessageQueued, wait.Round(time.Second))
}

func failedMessage(reason string) string {
	if reason == "" {
		reason = unknownFailure
	}
	return failedPrefix + reason
}

func derefPosition(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
