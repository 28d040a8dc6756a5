package ratelimit

import (
	"context"
	"time"

	kiterrors "github.com/praxisworks/runkit/errors"
)

const backoffFactor = 2.0

// RetryConfig holds retry behavior for remote calls.
type RetryConfig struct {
	// MaxRetries is how many times a failed call is retried after the
	// first attempt.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns configuration with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
	}
}

// Do runs fn, retrying with exponential backoff while the returned
// error is classified retryable (timeouts, unavailable remote, rate
// limits). Permanent errors propagate immediately. The error from the
// final attempt is returned when retries are exhausted.
func Do(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRetryConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultRetryConfig().MaxBackoff
	}

	backoff := cfg.InitialBackoff
	var err error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !kiterrors.IsRetryable(err) {
			return err
		}

		if attempt == cfg.MaxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return kiterrors.Wrap(ctx.Err(), "retry interrupted")
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return err
}
