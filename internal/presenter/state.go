package presenter

import (
	"sync"
	"time"

	"jobredirect/internal/job"
	"jobredirect/internal/lifecycle"
)

// View is what a status panel would currently display.
type View struct {
	Visible       bool       `json:"visible"`
	JobID         string     `json:"jobId,omitempty"`
	Status        job.Status `json:"status,omitempty"`
	Message       string     `json:"message,omitempty"`
	QueuePosition *int       `json:"queuePosition,omitempty"`
	Terminal      bool       `json:"terminal"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// State keeps the latest View. Safe for concurrent use.
type State struct {
	mu   sync.RWMutex
	view View
	now  func() time.Time
}

// NewState creates an empty, hidden view.
func NewState() *State {
	return &State{now: time.Now}
}

// View returns a copy of the current view.
func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.view
	if v.QueuePosition != nil {
		pos := *v.QueuePosition
		v.QueuePosition = &pos
	}
	return v
}

func (s *State) OnStatusChanged(status job.Status, message string, queuePosition *int) {
	s.OnJobStatusChanged("", status, message, queuePosition)
}

func (s *State) OnDismissed() {
	s.OnJobDismissed("")
}

func (s *State) OnJobStatusChanged(jobID string, status job.Status, message string, queuePosition *int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Visible:   true,
		JobID:     jobID,
		Status:    status,
		Message:   message,
		Terminal:  status.IsTerminal(),
		UpdatedAt: s.now(),
	}
	if queuePosition != nil {
		pos := *queuePosition
		v.QueuePosition = &pos
	}
	s.view = v
}

func (s *State) OnJobDismissed(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = View{UpdatedAt: s.now()}
}

var _ lifecycle.JobPresenter = (*State)(nil)
