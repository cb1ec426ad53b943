package dispatcher

import (
	"time"

	"jobredirect/internal/config"
	"jobredirect/pkg/backoff"
	"jobredirect/pkg/circuitbreaker"
)

// Hardcoded delivery defaults - these rarely need tuning.
const (
	defaultBufferSize     = 256
	defaultHTTPTimeout    = 10 * time.Second
	defaultMaxRetries     = 3
	defaultDeliverTimeout = 30 * time.Second
)

// MemoryConfig holds configuration for the in-memory dispatcher.
type MemoryConfig struct {
	BufferSize  int                   // pending events buffer (default: 256)
	HTTPTimeout time.Duration         // per-request timeout (default: 10s)
	MaxRetries  int                   // retries after the first attempt (default: 3, negative = none)
	Backoff     *backoff.Config       // retry backoff (nil = 100ms doubling to 5s)
	Breaker     circuitbreaker.Config // destination breaker (zero = 5 failures / 30s)
}

// LoadConfigFromEnv loads dispatcher configuration from environment variables.
func LoadConfigFromEnv() MemoryConfig {
	cfg := MemoryConfig{
		BufferSize:  config.GetIntEnv("WEBHOOK_BUFFER_SIZE", defaultBufferSize),
		HTTPTimeout: config.GetDurationEnv("WEBHOOK_HTTP_TIMEOUT", defaultHTTPTimeout),
		MaxRetries:  config.GetIntEnv("WEBHOOK_MAX_RETRIES", defaultMaxRetries),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = defaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	return c
}
