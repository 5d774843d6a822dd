package policy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutConfig configures the per-attempt time budget.
type TimeoutConfig struct {
	// Timeout bounds a single execution of the next executor.
	// Default: 30 seconds
	Timeout time.Duration
}

// TimeoutPolicy wraps the execution with a context deadline.
type TimeoutPolicy struct {
	config TimeoutConfig
}

// NewTimeoutPolicy creates a new timeout policy with the given configuration.
func NewTimeoutPolicy(config TimeoutConfig) *TimeoutPolicy {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &TimeoutPolicy{
		config: config,
	}
}

// Execute implements the Policy interface by applying the timeout.
func (t *TimeoutPolicy) Execute(ctx context.Context, next Executor) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	err := next(timeoutCtx)

	// Only our own deadline becomes ErrTimeout; a parent deadline passes through.
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, t.config.Timeout, err)
	}

	return err
}
