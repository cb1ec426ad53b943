package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"jobredirect/internal/job"
)

// FakeJobService is an httptest server speaking the job service API under /api.
// Status responses are scripted per job: each GET serves the next scripted body
// and the last one repeats.
type FakeJobService struct {
	Server *httptest.Server

	mu          sync.Mutex
	nextID      int
	submitCode  int
	submitBody  string
	submitPos   *int
	submissions []job.SubmitRequest
	requestIDs  []string
	authHeaders []string
	scripts     map[string][]string
	polls       map[string]int
	failPolls   int
	cancelled   []string
	healthy     bool
}

// NewFakeJobService starts a fake job service that is closed with the test.
func NewFakeJobService(tb testing.TB) *FakeJobService {
	tb.Helper()
	f := &FakeJobService{
		submitCode: http.StatusCreated,
		scripts:    make(map[string][]string),
		polls:      make(map[string]int),
		healthy:    true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", f.handleSubmit)
	mux.HandleFunc("GET /api/jobs/{id}", f.handleStatus)
	mux.HandleFunc("DELETE /api/jobs/{id}", f.handleCancel)
	mux.HandleFunc("GET /health", f.handleHealth)

	f.Server = httptest.NewServer(mux)
	tb.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake service.
func (f *FakeJobService) URL() string {
	return f.Server.URL
}

// FailSubmissions makes every submit answer with code and body.
func (f *FakeJobService) FailSubmissions(code int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCode = code
	f.submitBody = body
}

// SetSubmitPosition sets the queue position returned by successful submits.
func (f *FakeJobService) SetSubmitPosition(pos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitPos = &pos
}

// Script sets the status bodies served for jobID in order.
func (f *FakeJobService) Script(jobID string, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[jobID] = bodies
}

// FailNextPolls makes the next n status requests answer 503.
func (f *FakeJobService) FailNextPolls(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPolls = n
}

// SetHealthy controls the /health answer.
func (f *FakeJobService) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

// Submissions returns the decoded submit bodies received so far.
func (f *FakeJobService) Submissions() []job.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]job.SubmitRequest(nil), f.submissions...)
}

// RequestIDs returns the X-Request-Id headers of the submits received so far.
func (f *FakeJobService) RequestIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requestIDs...)
}

// AuthHeaders returns the Authorization headers of the submits received so far.
func (f *FakeJobService) AuthHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

// Polls returns how many status requests jobID has received, failed ones included.
func (f *FakeJobService) Polls(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[jobID]
}

// Cancelled returns the job ids a DELETE was received for.
func (f *FakeJobService) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *FakeJobService) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req job.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, `{"detail":"invalid body"}`)
		return
	}

	f.mu.Lock()
	f.submissions = append(f.submissions, req)
	f.requestIDs = append(f.requestIDs, r.Header.Get("X-Request-Id"))
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	code, body := f.submitCode, f.submitBody
	if code < 300 {
		f.nextID++
		resp := job.SubmitResponse{
			ID:              fmt.Sprintf("j%d", f.nextID),
			Status:          string(job.StatusPending),
			PositionInQueue: f.submitPos,
		}
		data, _ := json.Marshal(resp)
		body = string(data)
	}
	f.mu.Unlock()

	writeJSON(w, code, body)
}

func (f *FakeJobService) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	f.polls[id]++
	if f.failPolls > 0 {
		f.failPolls--
		f.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, `{"detail":"unavailable"}`)
		return
	}
	script, ok := f.scripts[id]
	var body string
	if ok && len(script) > 0 {
		body = script[0]
		if len(script) > 1 {
			f.scripts[id] = script[1:]
		}
	}
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, `{"detail":"Job not found"}`)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *FakeJobService) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	f.cancelled = append(f.cancelled, id)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, `{"message":"Job cancelled"}`)
}

func (f *FakeJobService) handleHealth(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	healthy := f.healthy
	f.mu.Unlock()

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, `{"status":"unhealthy"}`)
		return
	}
	writeJSON(w, http.StatusOK, `{"status":"healthy"}`)
}

func writeJSON(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
