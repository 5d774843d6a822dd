package policy

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/liftcord/liftcord/observability"
)

// InstrumentationPolicy provides OpenTelemetry tracing for guarded operations.
type InstrumentationPolicy struct {
	name         string
	instrumenter *observability.OTELInstrumenter
}

// NewInstrumentationPolicy creates a new instrumentation policy whose spans are
// called name. An empty name falls back to "operation".
func NewInstrumentationPolicy(provider trace.TracerProvider, name string) *InstrumentationPolicy {
	if name == "" {
		name = "operation"
	}

	return &InstrumentationPolicy{
		name:         name,
		instrumenter: observability.NewOTELInstrumenter(provider),
	}
}

// Execute implements the Policy interface by wrapping the execution with an OTEL span.
func (i *InstrumentationPolicy) Execute(ctx context.Context, next Executor) error {
	ctx, span := i.instrumenter.StartSpan(ctx, i.name, TargetFromContext(ctx))

	err := next(ctx)

	i.instrumenter.EndSpan(span, err)

	return err
}

// Instrumenter returns the underlying OTEL instrumenter.
func (i *InstrumentationPolicy) Instrumenter() *observability.OTELInstrumenter {
	return i.instrumenter
}
