// Package retry provides the backoff helpers used by the transport's
// reconnect loop.
package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config configures reconnect pacing.
type Config struct {
	// MaxAttempts caps the number of consecutive failed attempts.
	// Zero or negative means retry indefinitely.
	MaxAttempts int
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration
	// MaxDelay is the ceiling for the computed delay.
	MaxDelay time.Duration
	// Factor is the multiplier for exponential backoff.
	Factor float64
	// Jitter randomizes each delay to avoid thundering herds.
	Jitter bool
}

// DefaultConfig returns the baseline reconnect pacing.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  0,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Delay computes the delay before the given attempt (1-based) according to
// the config, including jitter when enabled.
func (c Config) Delay(attempt int) time.Duration {
	if c.Jitter {
		return BackoffWithJitter(attempt, c.InitialDelay, c.MaxDelay, c.Factor)
	}
	return Backoff(attempt, c.InitialDelay, c.MaxDelay, c.Factor)
}

// Backoff calculates the exponential backoff duration for a given attempt.
func Backoff(attempt int, initial, max time.Duration, factor float64) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	if factor <= 0 {
		factor = 2.0
	}

	delay := float64(initial) * math.Pow(factor, float64(attempt-1))
	if delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay)
}

// BackoffWithJitter calculates the backoff with random jitter.
func BackoffWithJitter(attempt int, initial, max time.Duration, factor float64) time.Duration {
	base := Backoff(attempt, initial, max, factor)
	// Jitter: base * [0.5, 1.5]
	jitterFactor := 0.5 + rand.Float64() // #nosec G404 -- jitter does not require cryptographic randomness
	return time.Duration(float64(base) * jitterFactor)
}

// PermanentError is an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent (shouldn't retry).
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
