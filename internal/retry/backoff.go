// Package retry reconnects to a management interface with exponential
// backoff.  Only long-running callers such as watch mode use it; single
// commands never retry.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	ncerr "ovpnmi/internal/errors"
)

// PermanentError stops a retry loop at once.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing waits.
type Backoff struct {
	// InitialDelay is the wait before the second attempt (default 1s).
	InitialDelay time.Duration
	// MaxDelay caps a single wait (default 30s).
	MaxDelay time.Duration
	// Multiplier grows the wait after each attempt (default 2).
	Multiplier float64
	// MaxAttempts counts the first try too; 0 retries until ctx ends.
	MaxAttempts int
	// Jitter spreads each wait by up to 25% either way.
	Jitter bool
	// Retryable decides whether an error is worth another attempt.
	// Nil means every non-permanent error is.
	Retryable func(error) bool
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultBackoff suits reconnecting to a local daemon that is being
// restarted: quick first retries, unlimited attempts, transport errors
// only.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		Retryable:    ncerr.IsTransport,
	}
}

// Do calls fn until it returns nil, a permanent or non-retryable error,
// the attempt budget runs out, or ctx is done.  attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := b.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		delay = min(time.Duration(float64(delay)*multiplier), maxDelay)
	}
}

// addJitter moves d by a random amount within 25% of it.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := rand.Float64()*2*quarter - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
