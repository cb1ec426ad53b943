package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobredirect/internal/job"
	"jobredirect/internal/testutil"
)

var errUnavailable = errors.New("service unavailable")

// scriptedFetcher answers fetches from a script; the last entry repeats.
type scriptedFetcher struct {
	mu       sync.Mutex
	script   []result
	calls    []time.Time
	ids      []string
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	block    bool
}

type result struct {
	status job.Status
	err    error
}

func (f *scriptedFetcher) FetchStatus(ctx context.Context, jobID string) (*job.Snapshot, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if n > f.maxSeen.Load() {
		f.maxSeen.Store(n)
	}

	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	f.ids = append(f.ids, jobID)
	var r result
	if len(f.script) > 0 {
		r = f.script[0]
		if len(f.script) > 1 {
			f.script = f.script[1:]
		}
	}
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &job.Snapshot{JobID: jobID, Status: r.status}, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *scriptedFetcher) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

func (f *scriptedFetcher) polledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func fastConfig() Config {
	return Config{Interval: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestPoller_DeliversUpdatesSequentially(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{status: job.StatusPending}, {status: job.StatusRunning}}}
	p := New(f, fastConfig(), nil)

	var updates atomic.Int64
	p.Start("j1", func(snap *job.Snapshot) {
		if snap.JobID != "j1" {
			t.Errorf("unexpected job id %q", snap.JobID)
		}
		// A slow consumer must not cause overlapping fetches.
		time.Sleep(2 * time.Millisecond)
		updates.Add(1)
	}, nil)
	defer p.Stop()

	testutil.MustWaitForCount(t, &updates, 10)
	if peak := f.maxSeen.Load(); peak != 1 {
		t.Errorf("expected at most one fetch in flight, saw %d", peak)
	}
	if !p.Active() || p.JobID() != "j1" {
		t.Error("expected poller to be active on j1")
	}
}

func TestPoller_TransportErrorsDoNotStopPolling(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{
		{err: errUnavailable},
		{err: errUnavailable},
		{status: job.StatusRunning},
	}}
	p := New(f, fastConfig(), nil)

	var errs, updates atomic.Int64
	p.Start("j1", func(*job.Snapshot) { updates.Add(1) }, func(err error) {
		if !errors.Is(err, errUnavailable) {
			t.Errorf("unexpected error %v", err)
		}
		errs.Add(1)
	})
	defer p.Stop()

	testutil.MustWaitForCount(t, &updates, 1)
	if errs.Load() != 2 {
		t.Errorf("expected 2 transport errors before the first update, got %d", errs.Load())
	}
}

func TestPoller_NilErrorFunc(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{err: errUnavailable}, {status: job.StatusPending}}}
	p := New(f, fastConfig(), nil)

	var updates atomic.Int64
	p.Start("j1", func(*job.Snapshot) { updates.Add(1) }, nil)
	defer p.Stop()

	testutil.MustWaitForCount(t, &updates, 1)
}

func TestPoller_StopEndsCallbacks(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{status: job.StatusPending}}}
	p := New(f, fastConfig(), nil)

	var updates atomic.Int64
	p.Start("j1", func(*job.Snapshot) { updates.Add(1) }, nil)
	testutil.MustWaitForCount(t, &updates, 3)

	p.Stop()
	p.Stop() // idempotent

	// A callback already running when Stop was called may still finish.
	time.Sleep(5 * time.Millisecond)
	seen := updates.Load()
	testutil.Never(t, func() bool { return updates.Load() != seen }, 30*time.Millisecond)
	if p.Active() {
		t.Error("expected poller to be inactive after Stop")
	}
}

func TestPoller_StartSupersedesRunningLoop(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{status: job.StatusPending}}}
	p := New(f, fastConfig(), nil)

	var oldUpdates, newUpdates atomic.Int64
	p.Start("old", func(*job.Snapshot) { oldUpdates.Add(1) }, nil)
	testutil.MustWaitForCount(t, &oldUpdates, 1)

	p.Start("new", func(*job.Snapshot) { newUpdates.Add(1) }, nil)
	defer p.Stop()
	testutil.MustWaitForCount(t, &newUpdates, 1)
	seen := oldUpdates.Load()

	testutil.MustWaitForCount(t, &newUpdates, 3)
	if oldUpdates.Load() != seen {
		t.Error("superseded loop kept delivering updates")
	}
	if p.JobID() != "new" {
		t.Errorf("JobID = %q, want new", p.JobID())
	}
}

func TestPoller_StopFromInsideCallback(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{status: job.StatusCompleted}}}
	p := New(f, fastConfig(), nil)

	var updates atomic.Int64
	done := make(chan struct{})
	p.Start("j1", func(*job.Snapshot) {
		updates.Add(1)
		p.Stop()
		close(done)
	}, nil)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop from inside the callback deadlocked")
	}
	testutil.Never(t, func() bool { return updates.Load() > 1 }, 20*time.Millisecond)
}

func TestPoller_StopCancelsInFlightFetch(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{block: true}
	p := New(f, fastConfig(), nil)

	p.Start("j1", func(*job.Snapshot) { t.Error("unexpected update") }, func(error) { t.Error("unexpected error callback") })
	testutil.MustWaitFor(t, func() bool { return f.inFlight.Load() == 1 })

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not cancel the in-flight fetch")
	}
	if f.inFlight.Load() != 0 {
		t.Error("fetch still in flight after Stop returned")
	}
}

func TestPoller_StretchesDelayAfterFailures(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{err: errUnavailable}}}
	p := New(f, Config{Interval: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond}, nil)

	p.Start("j1", func(*job.Snapshot) {}, func(error) {})
	testutil.MustWaitFor(t, func() bool { return f.callCount() >= 5 })
	p.Stop()

	calls := f.callTimes()
	// 5ms, then 10ms, 20ms, 20ms after the first, second and third failure.
	if gap := calls[2].Sub(calls[1]); gap < 20*time.Millisecond {
		t.Errorf("gap after two failures = %v, want >= 20ms", gap)
	}
	if gap := calls[4].Sub(calls[3]); gap < 20*time.Millisecond {
		t.Errorf("gap after four failures = %v, want >= 20ms", gap)
	}
}

func TestPoller_PollsTheStartedJob(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{status: job.StatusRunning}}}
	p := New(f, fastConfig(), nil)

	var updates atomic.Int64
	p.Start("j42", func(*job.Snapshot) { updates.Add(1) }, nil)
	testutil.MustWaitForCount(t, &updates, 2)
	p.Stop()

	for _, id := range f.polledIDs() {
		if id != "j42" {
			t.Fatalf("polled %q, want j42", id)
		}
	}
}

type tickCounter struct{ ok, failed atomic.Int64 }

func (c *tickCounter) RecordPollTick(_ context.Context, success bool) {
	if success {
		c.ok.Add(1)
		return
	}
	c.failed.Add(1)
}

func TestPoller_RecordsTicks(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{err: errUnavailable}, {status: job.StatusPending}}}
	m := &tickCounter{}
	p := New(f, fastConfig(), m)

	p.Start("j1", func(*job.Snapshot) {}, nil)
	testutil.MustWaitForCount(t, &m.ok, 1)
	p.Stop()

	if m.failed.Load() != 1 {
		t.Errorf("expected 1 failed tick, got %d", m.failed.Load())
	}
}

// gatedRecorder blocks the first tick in RecordPollTick until released.
type gatedRecorder struct {
	once     sync.Once
	entered  chan struct{}
	released chan struct{}
}

func (g *gatedRecorder) RecordPollTick(context.Context, bool) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.released
	}
}

func TestPoller_StopFromOtherGoroutineMidTick(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{script: []result{{status: job.StatusRunning}}}
	g := &gatedRecorder{entered: make(chan struct{}), released: make(chan struct{})}
	p := New(f, fastConfig(), g)

	var updates atomic.Int64
	p.Start("j1", func(*job.Snapshot) { updates.Add(1) }, nil)

	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first tick never reached metrics")
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	testutil.MustWaitFor(t, func() bool { return !p.Active() })
	close(g.released)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if got := updates.Load(); got != 0 {
		t.Errorf("onUpdate ran %d times for a tick stopped before its callback", got)
	}
	testutil.Never(t, func() bool { return updates.Load() != 0 }, 20*time.Millisecond)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	p := New(&scriptedFetcher{}, Config{}, nil)
	if p.cfg.Interval != 2*time.Second || p.cfg.MaxDelay != 2*time.Second {
		t.Errorf("unexpected defaults %+v", p.cfg)
	}
	if p.Active() {
		t.Error("new poller must be idle")
	}
}
