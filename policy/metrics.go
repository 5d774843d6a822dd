package policy

import (
	"context"
	"time"

	"github.com/liftcord/liftcord/observability"
)

// MetricsPolicy provides Prometheus metrics collection for guarded operations.
// It tracks execution duration and active executions per target.
type MetricsPolicy struct {
	collector *observability.MetricsCollector
}

// NewMetricsPolicy creates a new metrics policy with the given collector.
func NewMetricsPolicy(collector *observability.MetricsCollector) *MetricsPolicy {
	return &MetricsPolicy{
		collector: collector,
	}
}

// Execute implements the Policy interface by recording execution metrics.
func (m *MetricsPolicy) Execute(ctx context.Context, next Executor) error {
	target := TargetFromContext(ctx)

	m.collector.IncrementActiveOperations(target)
	defer m.collector.DecrementActiveOperations(target)

	startTime := time.Now()
	err := next(ctx)

	m.collector.RecordOperationDuration(target, observability.ErrorToReason(err), time.Since(startTime))

	return err
}

// Collector returns the underlying metrics collector.
// This allows other policies to record their specific metrics.
func (m *MetricsPolicy) Collector() *observability.MetricsCollector {
	return m.collector
}
