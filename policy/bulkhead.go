package policy

import (
	"context"
	"sync"

	"github.com/liftcord/liftcord/observability"
)

// BulkheadConfig configures the bulkhead (concurrency limiting) behavior.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of concurrent executions allowed.
	// Default: 100
	MaxConcurrent int

	// PerTarget when true, applies the concurrency limit per target.
	// When false, applies globally across all targets.
	PerTarget bool

	// Metrics, when set, counts rejections.
	Metrics *observability.MetricsCollector
}

// bulkhead represents a single semaphore for concurrency control.
type bulkhead struct {
	semaphore chan struct{}
}

// BulkheadPolicy implements concurrency limiting to prevent resource exhaustion.
// It uses a semaphore pattern (buffered channel) to limit concurrent executions.
type BulkheadPolicy struct {
	mu        sync.RWMutex
	bulkheads map[string]*bulkhead // target -> bulkhead (if PerTarget=true)
	global    *bulkhead            // global bulkhead (if PerTarget=false)
	config    BulkheadConfig
}

// NewBulkheadPolicy creates a new bulkhead policy with the given configuration.
func NewBulkheadPolicy(config BulkheadConfig) *BulkheadPolicy {
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 100
	}

	bp := &BulkheadPolicy{
		config: config,
	}

	if config.PerTarget {
		bp.bulkheads = make(map[string]*bulkhead)
	} else {
		bp.global = newBulkhead(config.MaxConcurrent)
	}

	return bp
}

// Execute implements the Policy interface by limiting concurrency.
func (bp *BulkheadPolicy) Execute(ctx context.Context, next Executor) error {
	target := TargetFromContext(ctx)

	b := bp.global
	if bp.config.PerTarget {
		b = bp.getBulkheadForTarget(target)
	}

	// Non-blocking acquire: fail fast when full
	select {
	case b.semaphore <- struct{}{}:
		defer func() {
			<-b.semaphore
		}()

		return next(ctx)

	default:
		if bp.config.Metrics != nil {
			bp.config.Metrics.IncrementBulkheadRejections(target)
		}
		return ErrBulkheadFull
	}
}

// getBulkheadForTarget returns the bulkhead for a given target, creating one if needed.
func (bp *BulkheadPolicy) getBulkheadForTarget(target string) *bulkhead {
	bp.mu.RLock()
	b, exists := bp.bulkheads[target]
	bp.mu.RUnlock()

	if exists {
		return b
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := bp.bulkheads[target]; exists {
		return b
	}

	b = newBulkhead(bp.config.MaxConcurrent)
	bp.bulkheads[target] = b

	return b
}

func newBulkhead(maxConcurrent int) *bulkhead {
	return &bulkhead{
		semaphore: make(chan struct{}, maxConcurrent),
	}
}

// Active returns the number of executions currently holding a slot for target.
// When the bulkhead is global, target is ignored.
func (bp *BulkheadPolicy) Active(target string) int {
	if !bp.config.PerTarget {
		return len(bp.global.semaphore)
	}

	bp.mu.RLock()
	b, exists := bp.bulkheads[target]
	bp.mu.RUnlock()

	if !exists {
		return 0
	}

	return len(b.semaphore)
}
