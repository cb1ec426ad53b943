// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial    time.Duration // default: 100ms
	Max        time.Duration // default: 5s
	Multiplier float64       // default: 2
}

func (c *Config) resolved() (initial, maxDelay time.Duration, multiplier float64) {
	initial = 100 * time.Millisecond
	maxDelay = 5 * time.Second
	multiplier = 2.0
	if c == nil {
		return initial, maxDelay, multiplier
	}
	if c.Initial > 0 {
		initial = c.Initial
	}
	if c.Max > 0 {
		maxDelay = c.Max
	}
	if c.Multiplier > 1 {
		multiplier = c.Multiplier
	}
	return initial, maxDelay, multiplier
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*multiplier, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxDelay, multiplier := cfg.resolved()
	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maxDelay) || math.IsInf(delay, 1) {
		return maxDelay
	}
	return time.Duration(delay)
}

// Stretch returns the wait before the next periodic attempt after the given number
// of consecutive failures. With no failures the base interval is returned unchanged;
// otherwise the interval grows exponentially and is capped at max.
// A max at or below base disables stretching.
func Stretch(base, maxDelay time.Duration, failures int) time.Duration {
	if failures <= 0 || maxDelay <= base {
		return base
	}
	return Exponential(failures+1, &Config{Initial: base, Max: maxDelay})
}
