// Package retry provides exponential backoff for operations that may fail
// transiently, such as dialing a process that is still starting up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// PermanentError wraps an error to signal that retrying will not help.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff implements exponential backoff with optional jitter.
type Backoff struct {
	// InitialDelay is the delay before the first retry (default 100ms).
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts (default 2s).
	MaxDelay time.Duration
	// Multiplier grows the delay after each attempt (default 2.0).
	Multiplier float64
	// MaxAttempts is the total number of tries including the first. Zero
	// retries until the context is done.
	MaxAttempts int
	// Jitter adds ±25% randomisation to each delay.
	Jitter bool
}

// WorkerDial is the backoff used to reach a freshly spawned worker: short
// delays, bounded only by the caller's deadline.
func WorkerDial() *Backoff {
	return &Backoff{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do calls fn until it succeeds, returns a permanent error, runs out of
// attempts or ctx is done. attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := b.InitialDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("max retries (%d) exceeded: %w", b.MaxAttempts, err)
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w (last error: %v)", attempt, ctx.Err(), err)
		case <-timer.C:
		}

		delay = min(time.Duration(float64(delay)*multiplier), maxDelay)
	}
}

func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
