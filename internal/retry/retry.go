// Package retry provides a bounded retry loop with a fixed inter-attempt
// delay. It exists so that transient-failure handling lives in exactly one
// place instead of ad hoc loops inside download code.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/genopipe/internal/ctxlog"
)

// Policy bounds a retry loop. Attempts counts total tries, not retries, so
// Attempts=1 means no retry at all.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// permanentError wraps an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-transient: Do returns it immediately without
// consuming further attempts. Used for failures where repeating the request
// cannot change the outcome, such as an HTTP 4xx.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do invokes fn up to p.Attempts times, sleeping p.Delay between attempts.
// It stops early on success, on a Permanent error, or when ctx is done. The
// returned error is the last attempt's error, unwrapped from any Permanent
// marker.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	logger := ctxlog.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == p.Attempts {
			break
		}
		logger.Warn("Attempt failed, retrying.",
			"attempt", attempt, "of", p.Attempts, "delay", p.Delay.String(), "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}

	return fmt.Errorf("after %d attempts: %w", p.Attempts, lastErr)
}
