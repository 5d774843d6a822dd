package policy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/liftcord/liftcord/backoff"
	"github.com/liftcord/liftcord/observability"
)

// RetryConfig configures the retry policy behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first one).
	// Negative means retry until the context is done.
	// Default: 3
	MaxAttempts int

	// NewBackoff returns a fresh strategy for every Execute call, so that
	// concurrent executions never share backoff state.
	// Default: exponential backoff with a one second base
	NewBackoff func() backoff.Backoff

	// ShouldRetry decides if a failed attempt should be retried.
	// If nil, every error is retried except context cancellation,
	// parent deadline expiry and errors marked with Permanent. Attempts
	// cut short by a TimeoutPolicy (ErrTimeout) are retried.
	ShouldRetry func(error) bool

	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Metrics, when set, records retry attempts and backoff delays.
	Metrics *observability.MetricsCollector

	// Logger receives one debug entry per retry. Default: no-op
	Logger *zap.Logger
}

// maxRetainedErrors bounds how many attempt errors a RetryError keeps.
const maxRetainedErrors = 10

// RetryPolicy implements automatic retry with configurable backoff strategies.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy with the given configuration.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}

	if config.NewBackoff == nil {
		config.NewBackoff = func() backoff.Backoff { return backoff.Default() }
	}

	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &RetryPolicy{
		config: config,
	}
}

// Execute implements the Policy interface by retrying failed attempts.
func (r *RetryPolicy) Execute(ctx context.Context, next Executor) error {
	var (
		recent   []error
		attempts int
		target   = TargetFromContext(ctx)
		strategy = r.config.NewBackoff()
	)

	for r.config.MaxAttempts < 0 || attempts < r.config.MaxAttempts {
		attempts++

		err := next(ctx)
		if err == nil {
			return nil
		}

		if !r.shouldRetry(err) {
			return err
		}
		if len(recent) == maxRetainedErrors {
			recent = append(recent[:0], recent[1:]...)
		}
		recent = append(recent, err)

		// Don't sleep after the last attempt
		if attempts == r.config.MaxAttempts {
			break
		}

		delay := strategy.Next()
		r.observe(target, err, delay, strategy)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempts, err, delay)
		}

		r.config.Logger.Debug("retrying operation",
			zap.String("target", observability.NormalizeTarget(target)),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := backoff.SleepContext(ctx, delay); err != nil {
			return multierr.Append(err, multierr.Combine(recent...))
		}
	}

	return &RetryError{Err: multierr.Combine(recent...), Attempts: attempts, Target: target}
}

func (r *RetryPolicy) observe(target string, err error, delay time.Duration, strategy backoff.Backoff) {
	if r.config.Metrics == nil {
		return
	}

	exponent := -1
	if e, ok := strategy.(*backoff.Exponential); ok {
		exponent = e.Exponent()
	}

	r.config.Metrics.IncrementRetryAttempts(target, observability.ErrorToReason(err))
	r.config.Metrics.ObserveBackoff(target, delay, exponent)
}

// shouldRetry determines if an attempt should be retried based on its error.
func (r *RetryPolicy) shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}

	if r.config.ShouldRetry != nil {
		return r.config.ShouldRetry(err)
	}

	// an attempt that hit its own timeout is worth another try
	if errors.Is(err, ErrTimeout) {
		return true
	}

	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
