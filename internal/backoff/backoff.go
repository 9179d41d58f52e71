// Package backoff computes retry delays for the execution guard and the
// scheduler's job retries.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const maxShift = 62

// Exponential returns base * 2^attempt, saturating instead of overflowing.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	attempt = min(max(attempt, 0), maxShift)

	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}
	return base * time.Duration(multiplier)
}

// FullJitter returns a random duration in [0, delay).
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(delay)))
}

// Capped returns the jittered exponential delay for attempt, never more
// than limit. A zero limit means no cap.
func Capped(base time.Duration, attempt int, limit time.Duration) time.Duration {
	d := Exponential(base, attempt)
	if limit > 0 && d > limit {
		d = limit
	}
	return FullJitter(d)
}

// Sleep waits for d or until ctx is done, whichever happens first.
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
