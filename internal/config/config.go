// Package config provides configuration loading from environment variables.
package config

import (
	"net/url"
	"strings"
	"time"
)

// Defaults for the job-service connection.
const (
	DefaultServiceURL = "http://localhost:3000"
	DefaultAPIPrefix  = "/api"
	DefaultUserID     = "unknown"
	DefaultFrontend   = "comfyui"
)

// ClientConfig holds configuration for the job controller and its collaborators.
// It is built once at startup and passed explicitly to each component.
type ClientConfig struct {
	ServiceURL   string        // Job service base URL
	APIPrefix    string        // Path prefix in front of /jobs
	ServiceToken string        // Bearer token for the job service (empty = none)
	UserID       string        // Submitter identity
	Frontend     string        // Reported in submission metadata
	HTTPTimeout  time.Duration // Per-request timeout
	PollInterval time.Duration // Status poll cadence
	PollMaxDelay time.Duration // Ceiling for the poll delay after consecutive failures
	RefreshDelay time.Duration // Delay before asking the host to refresh after completion

	BreakerThreshold int           // Consecutive submit failures before failing fast
	BreakerCooldown  time.Duration // Time spent failing fast before probing again
}

// ServerConfig holds configuration for the headless host process.
type ServerConfig struct {
	StatusAddr    string        // Local status server listen address (empty disables it)
	StatusToken   string        // Bearer token for POST /dismiss and /cancel (empty = no auth)
	MetricsPort   string        // Prometheus metrics port (empty disables it)
	NATSURL       string        // NATS server URL (empty disables the NATS presenter)
	NATSSubject   string        // Subject lifecycle events are published on
	WebhookURL    string        // Lifecycle webhook (empty disables it)
	WebhookKey    string        // HMAC key for webhook signatures
	ExitOnIdle    bool          // Exit once tracking ends
	ShutdownGrace time.Duration // Graceful shutdown timeout
}

// LoadClientConfig loads controller configuration from environment variables.
func LoadClientConfig() *ClientConfig {
	cfg := &ClientConfig{
		ServiceURL:       GetEnv("JOB_SERVICE_URL", DefaultServiceURL),
		APIPrefix:        GetEnv("JOB_SERVICE_API_PREFIX", DefaultAPIPrefix),
		ServiceToken:     GetSecretFile(GetEnv("JOB_SERVICE_TOKEN_FILE", "")),
		UserID:           GetEnv("JOBREDIRECT_USER_ID", DefaultUserID),
		Frontend:         GetEnv("JOBREDIRECT_FRONTEND", DefaultFrontend),
		HTTPTimeout:      GetDurationEnv("HTTP_TIMEOUT", 10*time.Second),
		PollInterval:     GetDurationEnv("POLL_INTERVAL", 2*time.Second),
		PollMaxDelay:     GetDurationEnv("POLL_MAX_BACKOFF", 30*time.Second),
		RefreshDelay:     GetDurationEnv("REFRESH_DELAY", 2*time.Second),
		BreakerThreshold: GetIntEnv("SUBMIT_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  GetDurationEnv("SUBMIT_BREAKER_COOLDOWN", 30*time.Second),
	}
	return cfg.WithDefaults()
}

// WithDefaults fills in zero values with defaults and normalises the base URL.
func (c ClientConfig) WithDefaults() *ClientConfig {
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		c.APIPrefix = "/" + c.APIPrefix
	}
	c.APIPrefix = strings.TrimRight(c.APIPrefix, "/")
	if c.UserID == "" {
		c.UserID = DefaultUserID
	}
	if c.Frontend == "" {
		c.Frontend = DefaultFrontend
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollMaxDelay < c.PollInterval {
		c.PollMaxDelay = c.PollInterval
	}
	if c.RefreshDelay < 0 {
		c.RefreshDelay = 0
	}
	return &c
}

// JobsURL returns the absolute URL of the jobs collection.
func (c *ClientConfig) JobsURL() string {
	return c.ServiceURL + c.APIPrefix + "/jobs"
}

// JobURL returns the absolute URL of a single job.
func (c *ClientConfig) JobURL(jobID string) string {
	return c.JobsURL() + "/" + url.PathEscape(jobID)
}

// HealthURL returns the job service health endpoint.
func (c *ClientConfig) HealthURL() string {
	return c.ServiceURL + "/health"
}

// LoadServerConfig loads host process configuration from environment variables.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		StatusAddr:    GetEnv("STATUS_ADDR", ":8189"),
		StatusToken:   GetSecretFile(GetEnv("STATUS_TOKEN_FILE", "")),
		MetricsPort:   GetEnv("METRICS_PORT", "9090"),
		NATSURL:       GetEnv("NATS_URL", ""),
		NATSSubject:   GetEnv("NATS_SUBJECT", "jobredirect.status"),
		WebhookURL:    GetEnv("WEBHOOK_URL", ""),
		WebhookKey:    GetSecretFile(GetEnv("WEBHOOK_KEY_FILE", "")),
		ExitOnIdle:    GetBoolEnv("EXIT_ON_IDLE", true),
		ShutdownGrace: GetDurationEnv("SHUTDOWN_GRACE", 10*time.Second),
	}
}
