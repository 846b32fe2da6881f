package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/infra/metrics"
)

// RetryPolicy bounds the compare-and-swap retry loop around an activity event.
// Backoff is BaseDelay * 2^(attempt-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int           // Total tries including the first
	BaseDelay   time.Duration // Delay before the second try (doubles each retry)
	MaxDelay    time.Duration // Cap on backoff delay
}

// DefaultRetryPolicy returns production retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, fails with an error other than
// domain.ErrConcurrentUpdate, or MaxAttempts is reached.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrConcurrentUpdate) {
			return err
		}
		metrics.CASConflicts.Inc()
		if attempt >= attempts {
			metrics.CASExhausted.Inc()
			return fmt.Errorf("after %d attempts: %w", attempt, domain.ErrConcurrentUpdate)
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
