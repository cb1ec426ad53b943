// Package poller periodically fetches the status of one remote job.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"jobredirect/internal/job"
	"jobredirect/pkg/backoff"
)

// Fetcher reads the current status of a job.
type Fetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*job.Snapshot, error)
}

// MetricsRecorder is an optional interface for recording poll metrics.
type MetricsRecorder interface {
	RecordPollTick(ctx context.Context, success bool)
}

// UpdateFunc receives each successfully fetched snapshot.
type UpdateFunc func(snap *job.Snapshot)

// ErrorFunc is informed of each failed fetch. It must not change tracking state.
type ErrorFunc func(err error)

// Config holds poller timing.
type Config struct {
	Interval time.Duration // delay between ticks (default: 2s)
	MaxDelay time.Duration // ceiling for the delay after consecutive failures (default: Interval)
}

// Poller runs at most one polling loop at a time.
//
// Ticks are strictly sequential: the next fetch is scheduled only after the previous
// result has been handed to its callback. Once Stop returns, no further callback
// starts. Stop and Start may be called from inside a callback; they do not wait
// for that callback to return.
type Poller struct {
	fetcher Fetcher
	cfg     Config
	metrics MetricsRecorder
	logger  *slog.Logger

	mu  sync.Mutex
	cur *run
}

type run struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	// Guarded by Poller.mu.
	inCallback bool
}

// New creates a poller. metrics may be nil.
func New(fetcher Fetcher, cfg Config, metrics MetricsRecorder) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxDelay < cfg.Interval {
		cfg.MaxDelay = cfg.Interval
	}
	return &Poller{
		fetcher: fetcher,
		cfg:     cfg,
		metrics: metrics,
		logger:  slog.With("component", "poller"),
	}
}

// Start begins polling jobID, stopping any loop already running. The first fetch
// happens one interval after Start.
func (p *Poller) Start(jobID string, onUpdate UpdateFunc, onError ErrorFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{jobID: jobID, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.cur
	p.cur = r
	wait := prev != nil && !prev.inCallback
	if prev != nil {
		prev.cancel()
	}
	p.mu.Unlock()

	if prev != nil {
		if wait {
			<-prev.done
		}
		p.logger.Debug("Polling superseded", "jobId", prev.jobID, "next", jobID)
	}

	p.logger.Debug("Polling started", "jobId", jobID, "interval", p.cfg.Interval)
	go p.loop(ctx, r, onUpdate, onError)
}

// Stop ends the current loop, if any, and cancels its in-flight request. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	r := p.cur
	p.cur = nil
	wait := r != nil && !r.inCallback
	if r != nil {
		r.cancel()
	}
	p.mu.Unlock()

	if r == nil {
		return
	}
	if wait {
		<-r.done
	}
	p.logger.Debug("Polling stopped", "jobId", r.jobID)
}

// Active reports whether a loop is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// JobID returns the id being polled, or "" when idle.
func (p *Poller) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return ""
	}
	return p.cur.jobID
}

func (p *Poller) loop(ctx context.Context, r *run, onUpdate UpdateFunc, onError ErrorFunc) {
	defer close(r.done)

	logger := p.logger.With("jobId", r.jobID)
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		snap, err := p.fetcher.FetchStatus(ctx, r.jobID)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			failures++
			if p.metrics != nil {
				p.metrics.RecordPollTick(ctx, false)
			}
			logger.Warn("Status poll failed", "failures", failures, "error", err)
			if onError != nil && p.enterCallback(ctx, r) {
				onError(err)
				p.leaveCallback(r)
			}
		} else {
			failures = 0
			if p.metrics != nil {
				p.metrics.RecordPollTick(ctx, true)
			}
			if !p.enterCallback(ctx, r) {
				return
			}
			onUpdate(snap)
			p.leaveCallback(r)
		}
		if ctx.Err() != nil {
			return
		}

		timer.Reset(backoff.Stretch(p.cfg.Interval, p.cfg.MaxDelay, failures))
	}
}

// enterCallback marks r as inside a callback unless it was stopped. The check and
// the mark happen under one lock, so a Stop that returns first wins.
func (p *Poller) enterCallback(ctx context.Context, r *run) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	r.inCallback = true
	return true
}

func (p *Poller) leaveCallback(r *run) {
	p.mu.Lock()
	r.inCallback = false
	p.mu.Unlock()
}
