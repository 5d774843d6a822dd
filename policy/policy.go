package policy

import "context"

// Executor runs one attempt of a guarded operation.
// It represents the next step in the policy chain (either another policy or the operation itself).
type Executor func(ctx context.Context) error

// Policy represents a resilience pattern that can be applied to an operation.
// Policies are chained together using the decorator pattern, with each policy
// wrapping the next one in the chain.
//
// A policy can:
// - Execute the next policy/operation by calling next()
// - Short-circuit and return early (e.g., circuit breaker open)
// - Retry by calling next() multiple times
// - Record metrics and traces
type Policy interface {
	// Execute runs the policy logic around the next executor in the chain.
	Execute(ctx context.Context, next Executor) error
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, next Executor) error

// Execute calls f(ctx, next).
func (f PolicyFunc) Execute(ctx context.Context, next Executor) error {
	return f(ctx, next)
}

// Chain creates an executor that chains multiple policies together.
// Policies are applied in order: the first policy wraps the second, which wraps the third, etc.
// The final executor is called after all policies have been applied.
//
// Example:
//
//	executor := Chain(
//	    []Policy{circuitBreakerPolicy, retryPolicy, timeoutPolicy},
//	    connect,
//	)
//	err := executor(WithTarget(ctx, "gateway"))
func Chain(policies []Policy, final Executor) Executor {
	executor := final

	for i := len(policies) - 1; i >= 0; i-- {
		policy := policies[i]
		next := executor

		executor = func(ctx context.Context) error {
			return policy.Execute(ctx, next)
		}
	}

	return executor
}

type targetKey struct{}

// WithTarget tags ctx with the target an operation talks to. Circuit breakers,
// bulkheads and metrics keep separate state per target.
func WithTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, targetKey{}, target)
}

// TargetFromContext returns the target set by WithTarget, or "".
func TargetFromContext(ctx context.Context) string {
	target, _ := ctx.Value(targetKey{}).(string)
	return target
}
