package scraper

import (
	"context"
	"sync/atomic"
	"time"
)

// retryPolicy runs an operation up to attempts times with capped exponential backoff.
// Permanent failures stop the sequence immediately.
type retryPolicy struct {
	attempts   int
	backoff    time.Duration
	backoffMax time.Duration
	metrics    *Metrics
	stats      *runStats
}

// run returns the number of attempts made and the last error.
func (rp retryPolicy) run(ctx context.Context, op func(attempt int) error) (int, error) {
	attempts := rp.attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(attempt); err == nil {
			return attempt, nil
		}
		if isPermanent(err) || attempt == attempts {
			return attempt, err
		}

		if rp.stats != nil {
			atomic.AddInt64(&rp.stats.retries, 1)
		}
		rp.metrics.IncRetries()

		timer := time.NewTimer(rp.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return attempts, err
}

func (rp retryPolicy) delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if rp.backoff <= 0 {
		return 0
	}

	delay := rp.backoff * time.Duration(1<<(attempt-1))
	if max := rp.backoffMax; max > 0 && (delay > max || delay <= 0) {
		delay = max
	}
	return delay
}
