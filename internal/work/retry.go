package work

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds a blocking call: every attempt gets its own timeout and
// a failed call is retried at most Retries times.
type RetryPolicy struct {
	Retries int
	Timeout time.Duration
	Backoff time.Duration // wait before retry n is n*Backoff

	// Retryable reports whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(err error) bool
}

// ErrAttemptsExhausted wraps the last error once every attempt has failed
var ErrAttemptsExhausted = errors.New("attempts exhausted")

// Do calls fn until it succeeds, the retries run out, or ctx is done.
// A cancelled parent context is returned as ctx.Err() without further attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * p.Backoff):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = p.attempt(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempts, lastErr)
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	return fn(attemptCtx)
}
