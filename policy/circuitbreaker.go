package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liftcord/liftcord/observability"
)

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	// StateHalfOpen lets probe executions through after the sleep window.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// ErrorThreshold is the percentage of errors (0-100) that triggers the circuit to open.
	// Default: 50
	ErrorThreshold int

	// MinRequests is the minimum number of executions before evaluating error threshold.
	// Default: 10
	MinRequests int

	// SleepWindow is the time to wait in open state before transitioning to half-open.
	// Default: 5 seconds
	SleepWindow time.Duration

	// SuccessThreshold is the number of consecutive successes in half-open state
	// required to close the circuit.
	// Default: 2
	SuccessThreshold int

	// ShouldTrip decides if an error counts toward opening the circuit.
	// If nil, every error except context cancellation counts.
	ShouldTrip func(error) bool

	// Metrics, when set, mirrors state changes and failures.
	Metrics *observability.MetricsCollector

	// Logger receives state transitions. Default: no-op
	Logger *zap.Logger
}

// CircuitBreakerPolicy fails fast with ErrCircuitOpen while a target keeps
// failing. Every target gets its own circuit.
type CircuitBreakerPolicy struct {
	config CircuitBreakerConfig

	mu       sync.RWMutex
	circuits map[string]*circuit
}

func NewCircuitBreakerPolicy(config CircuitBreakerConfig) *CircuitBreakerPolicy {
	if config.ErrorThreshold == 0 {
		config.ErrorThreshold = 50
	}
	if config.MinRequests == 0 {
		config.MinRequests = 10
	}
	if config.SleepWindow == 0 {
		config.SleepWindow = 5 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &CircuitBreakerPolicy{
		config:   config,
		circuits: make(map[string]*circuit),
	}
}

func (cb *CircuitBreakerPolicy) Execute(ctx context.Context, next Executor) error {
	c := cb.circuitFor(TargetFromContext(ctx))
	if !c.allow() {
		return ErrCircuitOpen
	}

	err := next(ctx)
	c.record(cb.counts(err))
	return err
}

// State reports the circuit state of target. Unknown targets are closed.
func (cb *CircuitBreakerPolicy) State(target string) CircuitState {
	cb.mu.RLock()
	c, ok := cb.circuits[target]
	cb.mu.RUnlock()

	if !ok {
		return StateClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (cb *CircuitBreakerPolicy) circuitFor(target string) *circuit {
	cb.mu.RLock()
	c, ok := cb.circuits[target]
	cb.mu.RUnlock()
	if ok {
		return c
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if c, ok := cb.circuits[target]; ok {
		return c
	}
	c = &circuit{target: target, config: &cb.config, since: time.Now()}
	cb.circuits[target] = c
	return c
}

// counts reports whether err is a failure for the circuit.
func (cb *CircuitBreakerPolicy) counts(err error) bool {
	if cb.config.ShouldTrip != nil {
		return cb.config.ShouldTrip(err)
	}
	return err != nil && !errors.Is(err, context.Canceled)
}

// circuit is the state of one target.
type circuit struct {
	target string
	config *CircuitBreakerConfig

	mu        sync.Mutex
	state     CircuitState
	since     time.Time
	total     int
	failed    int
	succeeded int
}

// allow reports whether an execution may proceed. An open circuit whose
// sleep window elapsed lets executions through as half-open probes.
func (c *circuit) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateOpen {
		if time.Since(c.since) <= c.config.SleepWindow {
			return false
		}
		c.moveTo(StateHalfOpen)
	}
	return true
}

func (c *circuit) record(failure bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	if !failure {
		c.succeeded++
		if c.state == StateHalfOpen && c.succeeded >= c.config.SuccessThreshold {
			c.moveTo(StateClosed)
		}
		return
	}

	c.failed++
	if c.config.Metrics != nil {
		c.config.Metrics.IncrementCircuitBreakerFailures(c.target)
	}

	switch c.state {
	case StateHalfOpen:
		c.moveTo(StateOpen)
	case StateClosed:
		if c.total >= c.config.MinRequests && c.failed*100/c.total >= c.config.ErrorThreshold {
			c.moveTo(StateOpen)
		}
	}
}

// moveTo switches state and starts a fresh window. Callers hold c.mu.
func (c *circuit) moveTo(state CircuitState) {
	c.config.Logger.Info("circuit breaker state change",
		zap.String("target", observability.NormalizeTarget(c.target)),
		zap.Stringer("from", c.state),
		zap.Stringer("to", state),
	)

	c.state = state
	c.since = time.Now()
	c.total, c.failed, c.succeeded = 0, 0, 0

	if c.config.Metrics != nil {
		c.config.Metrics.SetCircuitBreakerState(c.target, int(state))
	}
}
