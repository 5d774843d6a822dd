// Package backoff computes wait durations for retry and reconnect loops.
//
// The centerpiece is Exponential, a stateful calculator whose delay bound
// doubles with every consecutive failure up to base*2^10 and silently falls
// back to the initial regime once the caller has been quiet for longer than
// base*2^11. Each instance owns its own random source so that many
// concurrently backing-off connections do not retry in lockstep.
package backoff

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Backoff defines a strategy for calculating delay between retry attempts.
// Implementations are stateful and meant to be owned by a single retry loop.
type Backoff interface {
	// Next returns the duration to wait before the next attempt and
	// advances the strategy's internal state.
	Next() time.Duration

	// Reset returns the strategy to its initial state, typically after the
	// guarded operation succeeded for good.
	Reset()
}

// SleepContext blocks for d or until ctx is done, whichever comes first.
// It returns nil for non-positive durations without consulting ctx.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep interrupted: %w", ctx.Err())
	}
}

// secondsToDuration converts fractional seconds to a Duration, truncating
// toward zero and saturating at the largest representable Duration.
func secondsToDuration(s float64) time.Duration {
	ns := s * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	if ns <= 0 {
		return 0
	}
	return time.Duration(ns)
}
