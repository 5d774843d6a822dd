package backoff

import "time"

// Clock supplies the current time. Values returned by the default clock carry
// Go's monotonic reading, so elapsed-time math is immune to wall-clock jumps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the process monotonic clock.
func SystemClock() Clock { return systemClock{} }
