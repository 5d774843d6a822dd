package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "liftcord"

// DefaultTarget labels operations that were not given an explicit target.
const DefaultTarget = "default"

// MetricsCollector provides Prometheus metrics for guarded operations,
// backoff decisions and reconnect sessions.
type MetricsCollector struct {
	operationDuration   *prometheus.HistogramVec
	activeOperations    *prometheus.GaugeVec
	retryAttempts       *prometheus.CounterVec
	backoffDelay        *prometheus.HistogramVec
	backoffExponent     *prometheus.GaugeVec
	backoffResets       *prometheus.CounterVec
	reconnectAttempts   *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
	circuitBreakerFails *prometheus.CounterVec
	bulkheadRejections  *prometheus.CounterVec
}

// NewMetricsCollector creates a new Prometheus metrics collector.
// If registry is nil, uses the default Prometheus registry.
func NewMetricsCollector(registry prometheus.Registerer) *MetricsCollector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &MetricsCollector{
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of guarded operations in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"target", "outcome"},
		),

		activeOperations: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_operations",
				Help:      "Number of guarded operations currently executing",
			},
			[]string{"target"},
		),

		retryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"target", "reason"},
		),

		backoffDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backoff_delay_seconds",
				Help:      "Delays handed out by backoff strategies",
				// base*2^0 .. base*2^10 for a one second base
				Buckets: prometheus.ExponentialBuckets(1, 2, 11),
			},
			[]string{"target"},
		),

		backoffExponent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backoff_exponent",
				Help:      "Exponent used by the latest exponential backoff delay (0-10)",
			},
			[]string{"target"},
		),

		backoffResets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backoff_resets_total",
				Help:      "Times an exponential backoff restarted after an idle period",
			},
			[]string{"target"},
		),

		reconnectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnect_attempts_total",
				Help:      "Total number of connection attempts made by reconnect sessions",
			},
			[]string{"target", "outcome"},
		),

		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"target"},
		),

		circuitBreakerFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_failures_total",
				Help:      "Total number of failures recorded by circuit breakers",
			},
			[]string{"target"},
		),

		bulkheadRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_operations_total",
				Help:      "Total number of operations rejected by bulkhead",
			},
			[]string{"target"},
		),
	}
}

// RecordOperationDuration records how long a guarded operation took.
// outcome is "success" or a reason produced by ErrorToReason.
func (m *MetricsCollector) RecordOperationDuration(target, outcome string, duration time.Duration) {
	m.operationDuration.WithLabelValues(NormalizeTarget(target), outcome).Observe(duration.Seconds())
}

// IncrementActiveOperations increments the active operations gauge.
func (m *MetricsCollector) IncrementActiveOperations(target string) {
	m.activeOperations.WithLabelValues(NormalizeTarget(target)).Inc()
}

// DecrementActiveOperations decrements the active operations gauge.
func (m *MetricsCollector) DecrementActiveOperations(target string) {
	m.activeOperations.WithLabelValues(NormalizeTarget(target)).Dec()
}

// IncrementRetryAttempts increments the retry attempt counter.
func (m *MetricsCollector) IncrementRetryAttempts(target, reason string) {
	m.retryAttempts.WithLabelValues(NormalizeTarget(target), reason).Inc()
}

// ObserveBackoff records a delay handed out by a backoff strategy. A negative
// exponent means the strategy has none and leaves the gauge untouched.
func (m *MetricsCollector) ObserveBackoff(target string, delay time.Duration, exponent int) {
	target = NormalizeTarget(target)
	m.backoffDelay.WithLabelValues(target).Observe(delay.Seconds())
	if exponent >= 0 {
		m.backoffExponent.WithLabelValues(target).Set(float64(exponent))
	}
}

// IncrementBackoffResets counts an idle-triggered backoff restart.
func (m *MetricsCollector) IncrementBackoffResets(target string) {
	m.backoffResets.WithLabelValues(NormalizeTarget(target)).Inc()
}

// IncrementReconnectAttempts counts a connection attempt and its outcome.
func (m *MetricsCollector) IncrementReconnectAttempts(target, outcome string) {
	m.reconnectAttempts.WithLabelValues(NormalizeTarget(target), outcome).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state metric.
// state: 0=closed, 1=open, 2=half-open
func (m *MetricsCollector) SetCircuitBreakerState(target string, state int) {
	m.circuitBreakerState.WithLabelValues(NormalizeTarget(target)).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the circuit breaker failure counter.
func (m *MetricsCollector) IncrementCircuitBreakerFailures(target string) {
	m.circuitBreakerFails.WithLabelValues(NormalizeTarget(target)).Inc()
}

// IncrementBulkheadRejections increments the bulkhead rejection counter.
func (m *MetricsCollector) IncrementBulkheadRejections(target string) {
	m.bulkheadRejections.WithLabelValues(NormalizeTarget(target)).Inc()
}

// NormalizeTarget keeps label cardinality bounded for anonymous operations.
func NormalizeTarget(target string) string {
	if target == "" {
		return DefaultTarget
	}
	return target
}

// ErrorToReason converts an operation error to a low-cardinality label value.
func ErrorToReason(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
