package backoff

import "time"

// Linear implements a linear backoff strategy.
// The delay grows by Interval on every call: Interval, 2*Interval, 3*Interval...
type Linear struct {
	// Interval is the base delay that gets multiplied by the attempt count
	Interval time.Duration

	attempt int64
}

// NewLinear creates a linear backoff with the specified interval.
func NewLinear(interval time.Duration) *Linear {
	return &Linear{
		Interval: interval,
	}
}

// Next returns Interval multiplied by the number of calls since the last Reset.
func (l *Linear) Next() time.Duration {
	l.attempt++
	return l.Interval * time.Duration(l.attempt)
}

// Reset starts counting attempts from zero again.
func (l *Linear) Reset() {
	l.attempt = 0
}
