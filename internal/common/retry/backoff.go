// Package retry runs bounded operations with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds an operation. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy mirrors the 100ms, 200ms, 400ms ladder used by the stage handlers.
func DefaultPolicy(maxRetries int) Policy {
	return Policy{
		MaxAttempts:  maxRetries + 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// Backoff returns the wait before the given attempt (attempt >= 1 is the first retry).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}
	delay := p.InitialDelay * time.Duration(1<<(attempt-1))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do runs op until it succeeds, shouldRetry rejects the error, the attempt budget
// is spent or ctx is done. It returns the number of attempts made and the last error.
func Do(ctx context.Context, p Policy, shouldRetry func(error) bool, op func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := Sleep(ctx, p.Backoff(attempt)); err != nil {
				return attempt, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if ctx.Err() != nil {
			return attempt + 1, lastErr
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return attempt + 1, lastErr
		}
	}
	return maxAttempts, lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
