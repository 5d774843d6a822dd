package backoff

import "time"

// Constant implements a constant backoff strategy.
// The delay remains the same for all retry attempts.
type Constant struct {
	// Interval is the fixed delay between retries
	Interval time.Duration
}

// NewConstant creates a constant backoff with the specified interval.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{
		Interval: interval,
	}
}

// Next returns the constant delay, regardless of how many attempts failed.
func (c *Constant) Next() time.Duration {
	return c.Interval
}

// Reset is a no-op; a constant strategy carries no state.
func (c *Constant) Reset() {}
