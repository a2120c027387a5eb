package engine

import (
	"context"
	"math"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/infra/logger"
	"github.com/datallboy/tubefetch/internal/metrics"
)

// RetryPolicy retries transient failures with exponential backoff:
// base, 2*base, 4*base...
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt-1))) * p.BaseDelay
}

// Do runs fn until it succeeds, returns a permanent error, or runs out
// of attempts. before runs ahead of every retry.
func (p RetryPolicy) Do(ctx context.Context, log *logger.Logger, op string, before func() error, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || attempt >= attempts || !domain.IsTransient(err) || ctx.Err() != nil {
			return err
		}

		delay := p.delay(attempt)
		log.Warn("[Retry] %s: Attempt %d/%d - Error: %v. Retrying in %v", op, attempt, attempts, err, delay)
		metrics.RecordRetry(op)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if before != nil {
			if err := before(); err != nil {
				return err
			}
		}
	}
}
