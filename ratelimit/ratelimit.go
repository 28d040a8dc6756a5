package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Common errors.
var (
	ErrInvalidConfig = errors.New("invalid limiter configuration")
)

// Config holds sliding-window limiter configuration.
type Config struct {
	// Requests is the maximum number of acquisitions per window.
	Requests int

	// Window is the duration the request log slides over.
	Window time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Requests: 30,
		Window:   time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Requests <= 0 {
		return ErrInvalidConfig
	}
	if c.Window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Limiter is a sliding-window-log rate limiter. It keeps the
// timestamps of recent acquisitions; a new acquisition is admitted when
// fewer than the limit fall inside the window, otherwise the caller
// waits until the oldest timestamp slides out.
//
// Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	stamps []time.Time
	config Config

	// now is swappable in tests.
	now func() time.Time
}

// NewLimiter creates a sliding-window limiter.
func NewLimiter(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		config: cfg,
		now:    time.Now,
	}, nil
}

// Acquire blocks until the request fits in the window or ctx ends.
// Returns ctx.Err() if the context is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := l.admit()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// TryAcquire admits the request only if it fits right now.
func (l *Limiter) TryAcquire() bool {
	_, ok := l.admit()
	return ok
}

// admit prunes expired timestamps and records the request if the
// window has room. When full it returns how long until the oldest
// timestamp leaves the window.
func (l *Limiter) admit() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	boundary := now.Add(-l.config.Window)

	// Timestamps are ordered, so cut everything before the boundary.
	drop := 0
	for drop < len(l.stamps) && !l.stamps[drop].After(boundary) {
		drop++
	}
	if drop > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[drop:]...)
	}

	if len(l.stamps) < l.config.Requests {
		l.stamps = append(l.stamps, now)
		return 0, true
	}

	wait = l.stamps[0].Add(l.config.Window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// InWindow returns how many acquisitions currently count against the
// limit.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	boundary := l.now().Add(-l.config.Window)
	n := 0
	for _, ts := range l.stamps {
		if ts.After(boundary) {
			n++
		}
	}
	return n
}
