// Package health answers liveness and readiness probes for the status server.
package health

import (
	"context"
	"sync"
	"time"
)

// ReadinessChecker reports whether a dependency can currently accept work.
// The job service client implements it.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// BreakerReporter exposes a circuit breaker state such as "closed" or "open".
type BreakerReporter func() string

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a single check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the probe response body.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker performs readiness checks with a short result cache.
type Checker struct {
	jobService ReadinessChecker
	webhook    BreakerReporter
	timeout    time.Duration
	cacheTTL   time.Duration
	now        func() time.Time

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a checker for the job service. webhook may be nil when
// no webhook destination is configured.
func NewChecker(jobService ReadinessChecker, webhook BreakerReporter) *Checker {
	return &Checker{
		jobService: jobService,
		webhook:    webhook,
		timeout:    5 * time.Second,
		cacheTTL:   time.Second,
		now:        time.Now,
	}
}

// Liveness never touches the network.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness reports unhealthy when the job service is unreachable or its
// submit breaker is open. An open webhook breaker only degrades the result,
// since submissions still work without event delivery.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "shutting down"},
			},
		}
	}

	if c.cachedReady != nil && c.now().Sub(c.lastCheck) < c.cacheTTL {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := make(map[string]CheckResult)
	overallStatus := StatusHealthy

	serviceCheck := c.checkJobService(ctx)
	checks["jobService"] = serviceCheck
	if serviceCheck.Status != StatusHealthy {
		overallStatus = StatusUnhealthy
	}

	if c.webhook != nil {
		webhookCheck := CheckResult{Status: StatusHealthy}
		if state := c.webhook(); state == "open" {
			webhookCheck = CheckResult{Status: StatusDegraded, Message: "delivery circuit open"}
			if overallStatus == StatusHealthy {
				overallStatus = StatusDegraded
			}
		}
		checks["webhook"] = webhookCheck
	}

	response := &Response{
		Status: overallStatus,
		Checks: checks,
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = c.now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkJobService(ctx context.Context) CheckResult {
	if c.jobService == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "job service not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.jobService.Ready(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// SetShuttingDown makes every later readiness probe fail.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
