// Package jobservice is the HTTP client for the remote job service: it submits
// serialized work, fetches job status, and requests cancellation.
package jobservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"jobredirect/internal/apperrors"
	"jobredirect/internal/config"
	"jobredirect/internal/job"
	"jobredirect/pkg/circuitbreaker"
)

const (
	maxResponseBytes = 1 << 20
	userAgent        = "jobredirect/1"
)

// HTTPError is a non-2xx answer from the job service.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("job service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("job service returned %d: %s", e.StatusCode, e.Detail)
}

// Client talks to the job service. Safe for concurrent use.
type Client struct {
	cfg     *config.ClientConfig
	http    *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger

	now       func() time.Time
	requestID func() string
}

// New creates a client for the configured job service.
func New(cfg *config.ClientConfig) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
		}),
		logger:    slog.With("component", "jobservice"),
		now:       time.Now,
		requestID: uuid.NewString,
	}
}

// Submit sends one submission for payload on behalf of userID. The payload is
// embedded verbatim. Exactly one request is made; it is never retried. Every
// failure is an apperrors.ErrSubmission.
func (c *Client) Submit(ctx context.Context, payload json.RawMessage, userID string) (*job.Submission, error) {
	const op = "jobservice.submit"

	requestID := c.requestID()
	body, err := json.Marshal(job.SubmitRequest{
		UserID:   userID,
		Workflow: payload,
		Priority: job.PriorityNormal,
		Metadata: job.SubmitMetadata{
			SubmittedAt:     c.now().UTC().Format(time.RFC3339),
			Frontend:        c.cfg.Frontend,
			ClientRequestID: requestID,
		},
	})
	if err != nil {
		return nil, apperrors.Submission(op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.JobsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Submission(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	if !c.breaker.Allow() {
		c.logger.Warn("Job service circuit open, failing fast", "requestId", requestID)
		return nil, apperrors.Submission(op, circuitbreaker.ErrOpen)
	}

	c.logger.Debug("Submitting job", "requestId", requestID, "bytes", len(payload))

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordTransportFailure(ctx)
		return nil, apperrors.Submission(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.recordTransportFailure(ctx)
		return nil, apperrors.Submission(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A 4xx means the service is up and rejected this workflow.
		if resp.StatusCode >= 500 {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
		herr := newHTTPError(resp.StatusCode, data)
		c.logger.Warn("Job submission rejected", "requestId", requestID, "status", resp.StatusCode, "error", herr)
		return nil, apperrors.Submission(op, herr)
	}
	c.breaker.RecordSuccess()

	var sr job.SubmitResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, apperrors.Submission(op, fmt.Errorf("decode response: %w", err))
	}
	if sr.ID == "" {
		return nil, apperrors.Submission(op, errors.New("response carries no job id"))
	}

	c.logger.Info("Job submitted", "jobId", sr.ID, "requestId", requestID)
	return &job.Submission{ID: sr.ID, QueuePosition: sr.PositionInQueue}, nil
}

// recordTransportFailure counts a failed submission against the breaker unless the
// caller's context ended it.
func (c *Client) recordTransportFailure(ctx context.Context) {
	if ctx.Err() != nil {
		c.breaker.Abandon()
		return
	}
	c.breaker.RecordFailure()
}

// FetchStatus reads the current status of jobID. Every failure is an
// apperrors.ErrTransport. The returned snapshot carries the id the service echoed,
// which may differ from jobID.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*job.Snapshot, error) {
	const op = "jobservice.status"

	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.JobURL(jobID), nil)
	if err != nil {
		return nil, apperrors.Transport(op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Transport(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Transport(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Transport(op, newHTTPError(resp.StatusCode, data))
	}

	if err := validateStatus(data); err != nil {
		return nil, apperrors.Transport(op, err)
	}
	var sr job.StatusResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, apperrors.Transport(op, fmt.Errorf("decode status: %w", err))
	}
	snap, err := sr.Snapshot(jobID)
	if err != nil {
		return nil, apperrors.Transport(op, err)
	}
	return snap, nil
}

// Cancel asks the service to cancel jobID. The resulting status is observed by polling.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	const op = "jobservice.cancel"

	req, err := c.newRequest(ctx, http.MethodDelete, c.cfg.JobURL(jobID), nil)
	if err != nil {
		return apperrors.Transport(op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Transport(op, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound("job", jobID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return apperrors.Transport(op, newHTTPError(resp.StatusCode, data))
	}

	c.logger.Info("Job cancellation requested", "jobId", jobID)
	return nil
}

// Ping checks the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.HealthURL(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Ready implements health.ReadinessChecker.
func (c *Client) Ready(ctx context.Context) error {
	if c.breaker.State() == circuitbreaker.Open {
		return circuitbreaker.ErrOpen
	}
	return c.Ping(ctx)
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.ServiceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceToken)
	}
	return req, nil
}

// newHTTPError extracts a readable detail from an error body. The service answers
// {"detail": "..."} for most errors and {"detail": [...]} for validation failures.
func newHTTPError(code int, body []byte) *HTTPError {
	herr := &HTTPError{StatusCode: code}

	var er job.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		switch d := er.Detail.(type) {
		case string:
			herr.Detail = d
		case nil:
			herr.Detail = er.Error
		default:
			if b, err := json.Marshal(d); err == nil {
				herr.Detail = string(b)
			}
		}
	}
	if herr.Detail == "" {
		herr.Detail = http.StatusText(code)
	}
	return herr
}
