package http

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultMaxAttempts is the default number of attempts per request.
const DefaultMaxAttempts = 3

// DefaultRetryWait is the default wait before the first retry.
const DefaultRetryWait = 500 * time.Millisecond

// DefaultMaxRetryWait caps any single wait, including Retry-After.
const DefaultMaxRetryWait = 10 * time.Second

// RetryPolicy retries operations whose errors satisfy IsRetryable.
// The zero value uses the defaults above.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Wait is the initial backoff; it doubles after every attempt.
	Wait time.Duration

	// MaxWait caps each individual wait.
	MaxWait time.Duration

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Wait <= 0 {
		p.Wait = DefaultRetryWait
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultMaxRetryWait
	}
	return p
}

// Attempts returns the effective attempt budget.
func (p RetryPolicy) Attempts() int {
	return p.withDefaults().MaxAttempts
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. A spent budget yields a *TransientError wrapping
// the last failure. Cancellation of ctx returns ctx.Err() without further attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == p.MaxAttempts-1 {
			break
		}

		wait := p.waitFor(err, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &TransientError{Attempts: p.MaxAttempts, Err: lastErr}
}

// waitFor calculates the wait before the next attempt.
func (p RetryPolicy) waitFor(err error, attempt int) time.Duration {
	wait := p.Wait * time.Duration(1<<attempt)

	// Server-requested wait wins over backoff
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		wait = apiErr.RetryAfter
	}

	if wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}
