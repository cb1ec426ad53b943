package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"jobredirect/internal/apperrors"
	"jobredirect/internal/dispatcher"
	"jobredirect/internal/health"
	"jobredirect/internal/job"
	"jobredirect/internal/lifecycle"
	"jobredirect/internal/presenter"
)

type fakeController struct {
	mu         sync.Mutex
	state      lifecycle.State
	current    *job.Job
	dismissals int
	cancelErr  error
	cancels    int
}

func (f *fakeController) State() lifecycle.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Current() (job.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return job.Job{}, false
	}
	return *f.current, true
}

func (f *fakeController) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissals++
	f.current = nil
	f.state = lifecycle.StateIdle
}

func (f *fakeController) Dismissals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dismissals
}

func (f *fakeController) CancelCurrent(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return f.cancelErr
}

type fakeReady struct{ err error }

func (f fakeReady) Ready(context.Context) error { return f.err }

type fakeDispatcher struct{ stats dispatcher.Stats }

func (f *fakeDispatcher) Dispatch(*dispatcher.Event) error { return nil }
func (f *fakeDispatcher) Stats() dispatcher.Stats          { return f.stats }
func (f *fakeDispatcher) Close(context.Context) error      { return nil }

func newTestServer(t *testing.T, ctrl *fakeController, cfg RouterConfig) *httptest.Server {
	t.Helper()
	cfg.Controller = ctrl
	if cfg.HealthChecker == nil {
		cfg.HealthChecker = health.NewChecker(fakeReady{}, nil)
	}
	srv := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatus_Idle(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeController{}, RouterConfig{View: presenter.NewState()})

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "idle" || body.Job != nil || body.View.Visible {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestStatus_Tracking(t *testing.T) {
	t.Parallel()
	pos := 2
	submitted := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	ctrl := &fakeController{
		state:   lifecycle.StateTracking,
		current: &job.Job{ID: "j1", Status: job.StatusPending, QueuePosition: &pos, SubmittedAt: submitted},
	}
	view := presenter.NewState()
	view.OnJobStatusChanged("j1", job.StatusPending, "Job queued", &pos)
	srv := newTestServer(t, ctrl, RouterConfig{View: view})

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "tracking" {
		t.Errorf("State = %q", body.State)
	}
	if body.Job == nil || body.Job.ID != "j1" || body.Job.QueuePosition == nil || *body.Job.QueuePosition != 2 {
		t.Fatalf("unexpected job %+v", body.Job)
	}
	if !body.Job.SubmittedAt.Equal(submitted) {
		t.Errorf("SubmittedAt = %v", body.Job.SubmittedAt)
	}
	if !body.View.Visible || body.View.Message != "Job queued" {
		t.Errorf("unexpected view %+v", body.View)
	}
}

func TestDismiss(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{state: lifecycle.StateTracking, current: &job.Job{ID: "j1", Status: job.StatusRunning}}
	srv := newTestServer(t, ctrl, RouterConfig{})

	resp := post(t, srv.URL+"/dismiss", "")

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.Dismissals(); got != 1 {
		t.Errorf("dismissals = %d", got)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"nothing tracked", apperrors.NotFound("job", ""), http.StatusNotFound},
		{"job service down", apperrors.Transport("cancel job", errors.New("connection refused")), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := &fakeController{cancelErr: tt.err}
			srv := newTestServer(t, ctrl, RouterConfig{})

			resp := post(t, srv.URL+"/cancel", "")

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.err != nil {
				var body map[string]string
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body["error"] == "" {
					t.Error("expected error message")
				}
			}
		})
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer secret", http.StatusNoContent},
		{"case-insensitive scheme", "bearer secret", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := &fakeController{}
			srv := newTestServer(t, ctrl, RouterConfig{Token: "secret"})

			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/dismiss", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAuth_StatusIsOpen(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeController{}, RouterConfig{Token: "secret"})

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestProbes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		path    string
		ready   error
		webhook health.BreakerReporter
		want    int
	}{
		{"livez", "/livez", errors.New("down"), nil, http.StatusOK},
		{"readyz healthy", "/readyz", nil, nil, http.StatusOK},
		{"readyz degraded", "/readyz", nil, func() string { return "open" }, http.StatusOK},
		{"readyz unhealthy", "/readyz", errors.New("down"), nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, &fakeController{}, RouterConfig{
				HealthChecker: health.NewChecker(fakeReady{err: tt.ready}, tt.webhook),
			})

			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestDispatcherStats(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, &fakeController{}, RouterConfig{})
		resp, err := http.Get(srv.URL + "/debug/dispatcher")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("configured", func(t *testing.T) {
		t.Parallel()
		d := &fakeDispatcher{stats: dispatcher.Stats{Queued: 3, Delivered: 2, Dropped: 1, Breaker: "closed"}}
		srv := newTestServer(t, &fakeController{}, RouterConfig{Dispatcher: d})
		resp, err := http.Get(srv.URL + "/debug/dispatcher")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()

		var body DispatcherStats
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Queued != 3 || body.Delivered != 2 || body.Dropped != 1 || body.Breaker != "closed" {
			t.Errorf("unexpected stats %+v", body)
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()
	h := RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
