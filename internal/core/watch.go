package core

import (
	"context"
	"time"

	ncerr "ovpnmi/internal/errors"
	"ovpnmi/internal/metrics"
	"ovpnmi/internal/retry"
)

// WatchMode polls the status report on an interval.  A transport
// failure drops the session and reconnects with backoff; a report that
// fails to parse is logged and the next poll goes ahead.
type WatchMode struct {
	base
	Interval time.Duration
	Backoff  *retry.Backoff
	Metrics  *metrics.Collector
	// Count stops after that many successful polls; 0 runs until ctx
	// is cancelled.
	Count int
}

func (m *WatchMode) Run(ctx context.Context) error {
	defer m.teardown()

	backoff := m.Backoff
	if backoff == nil {
		backoff = retry.DefaultBackoff()
	}
	if backoff.OnRetry == nil {
		backoff.OnRetry = func(attempt int, wait time.Duration, err error) {
			m.Logger.Warn("poll %d failed, reconnecting in %s: %v", attempt, wait.Round(time.Millisecond), err)
		}
	}

	for polls := 0; ; {
		err := backoff.Do(ctx, func(attempt int) error {
			if attempt > 1 {
				m.Metrics.Reconnect()
			}
			return m.poll(ctx)
		})
		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil:
			polls++
		case ncerr.IsTransport(err), ncerr.As(err, new(*outputError)):
			return err
		default:
			m.Logger.Warn("poll: %v", err)
		}

		if m.Count > 0 && polls >= m.Count {
			return nil
		}

		timer := time.NewTimer(m.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (m *WatchMode) poll(ctx context.Context) error {
	snap, err := m.Manager.QueryStatus(ctx)
	if err != nil {
		if ncerr.IsTransport(err) {
			// Drop the broken connection so the next attempt redials.
			_ = m.Manager.Close()
		}
		return err
	}
	if err := m.Printer.Heading(time.Now()); err != nil {
		return &outputError{err}
	}
	if err := m.Printer.Status(snap); err != nil {
		return &outputError{err}
	}
	return nil
}

// outputError marks a failure to write a poll's result.  Nothing more
// can be shown once output fails, so it ends the watch.
type outputError struct{ err error }

func (e *outputError) Error() string { return "output: " + e.err.Error() }
func (e *outputError) Unwrap() error { return e.err }
