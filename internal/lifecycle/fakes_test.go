package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"jobredirect/internal/job"
	"jobredirect/internal/poller"
)

type fakeService struct {
	mu        sync.Mutex
	payloads  []json.RawMessage
	users     []string
	nextID    int
	position  *int
	err       error
	release   chan struct{} // when set, Submit blocks until closed
	cancelled []string
}

func (s *fakeService) Submit(ctx context.Context, payload json.RawMessage, userID string) (*job.Submission, error) {
	s.mu.Lock()
	release := s.release
	s.mu.Unlock()
	if release != nil {
		<-release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	s.users = append(s.users, userID)
	if s.err != nil {
		return nil, s.err
	}
	s.nextID++
	return &job.Submission{ID: fmt.Sprintf("j%d", s.nextID), QueuePosition: s.position}, nil
}

func (s *fakeService) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, jobID)
	return nil
}

func (s *fakeService) submissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

// manualPoller lets tests deliver poll results synchronously.
type manualPoller struct {
	mu       sync.Mutex
	starts   []string
	stops    int
	active   string
	onUpdate poller.UpdateFunc
	onError  poller.ErrorFunc
}

func (p *manualPoller) Start(jobID string, onUpdate poller.UpdateFunc, onError poller.ErrorFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts = append(p.starts, jobID)
	p.active = jobID
	p.onUpdate = onUpdate
	p.onError = onError
}

func (p *manualPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.active = ""
}

// deliver hands snap to the most recently started loop's callback, even after Stop,
// the way a response already in flight would arrive.
func (p *manualPoller) deliver(snap *job.Snapshot) {
	p.mu.Lock()
	fn := p.onUpdate
	p.mu.Unlock()
	fn(snap)
}

func (p *manualPoller) fail(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	fn(err)
}

func (p *manualPoller) activeJob() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

type event struct {
	jobID    string
	status   job.Status
	message  string
	position *int
}

type recordingPresenter struct {
	mu        sync.Mutex
	events    []event
	dismissed int
}

func (r *recordingPresenter) OnStatusChanged(status job.Status, message string, queuePosition *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{status: status, message: message, position: queuePosition})
}

func (r *recordingPresenter) OnDismissed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed++
}

func (r *recordingPresenter) snapshot() ([]event, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...), r.dismissed
}

// jobRecordingPresenter also implements JobPresenter.
type jobRecordingPresenter struct {
	recordingPresenter
	dismissedIDs []string
}

func (r *jobRecordingPresenter) OnJobStatusChanged(jobID string, status job.Status, message string, queuePosition *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{jobID: jobID, status: status, message: message, position: queuePosition})
}

func (r *jobRecordingPresenter) OnJobDismissed(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissedIDs = append(r.dismissedIDs, jobID)
}

type fakeHost struct {
	mu        sync.Mutex
	payload   json.RawMessage
	serErr    error
	alerts    []string
	refreshes atomic.Int64
}

func (h *fakeHost) SerializeWork(context.Context) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.payload, h.serErr
}

func (h *fakeHost) RefreshResults(context.Context) error {
	h.refreshes.Add(1)
	return nil
}

func (h *fakeHost) Alert(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, message)
}

func (h *fakeHost) alertMessages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.alerts...)
}

func intPtr(v int) *int { return &v }

func position(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
