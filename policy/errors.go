package policy

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Sentinel errors that can be checked using errors.Is
var (
	// ErrCircuitOpen is returned when a circuit breaker is in the open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBulkheadFull is returned when the bulkhead capacity is exceeded.
	ErrBulkheadFull = errors.New("bulkhead capacity exceeded")

	// ErrTimeout is returned when an attempt exceeds its time budget.
	ErrTimeout = errors.New("operation timeout")

	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("max retry attempts exceeded")
)

// RetryError reports an operation that kept failing until the retry policy
// gave up. It matches ErrMaxRetriesExceeded and every attempt error with errors.Is.
type RetryError struct {
	// Err aggregates the errors of the most recent attempts, oldest first.
	// At most ten are kept.
	Err error

	// Attempts is the number of attempts that were made
	Attempts int

	// Target is the target the operation was tagged with, if any
	Target string
}

// Error implements the error interface.
func (e *RetryError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("policy: %s failed after %d attempts: %v", e.Target, e.Attempts, e.Err)
	}
	return fmt.Sprintf("policy: operation failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes ErrMaxRetriesExceeded and the aggregated attempt errors.
func (e *RetryError) Unwrap() []error {
	return []error{ErrMaxRetriesExceeded, e.Err}
}

// Errors returns the individual attempt errors.
func (e *RetryError) Errors() []error {
	return multierr.Errors(e.Err)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry policies and reconnect
// sessions stop as soon as they see it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
