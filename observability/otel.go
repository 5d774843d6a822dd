package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/liftcord/liftcord"
)

// OTELInstrumenter provides OpenTelemetry instrumentation for guarded operations.
type OTELInstrumenter struct {
	tracer trace.Tracer
}

// NewOTELInstrumenter creates a new OTEL instrumenter with the given tracer provider.
// If provider is nil, uses the global tracer provider.
func NewOTELInstrumenter(provider trace.TracerProvider) *OTELInstrumenter {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	return &OTELInstrumenter{
		tracer: provider.Tracer(instrumentationName),
	}
}

// StartSpan creates a span named after the operation and tags it with the target.
func (o *OTELInstrumenter) StartSpan(ctx context.Context, name, target string) (context.Context, trace.Span) {
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
	)

	span.SetAttributes(attribute.String("liftcord.target", NormalizeTarget(target)))

	return ctx, span
}

// EndSpan records the outcome of the operation and ends the span.
func (o *OTELInstrumenter) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// AddBackoffEvent records a backoff decision on the span.
func (o *OTELInstrumenter) AddBackoffEvent(span trace.Span, attempt int, delay time.Duration, exponent int) {
	attrs := []attribute.KeyValue{
		attribute.Int("liftcord.attempt", attempt),
		attribute.Float64("liftcord.backoff.delay_seconds", delay.Seconds()),
	}
	if exponent >= 0 {
		attrs = append(attrs, attribute.Int("liftcord.backoff.exponent", exponent))
	}

	span.AddEvent("backoff", trace.WithAttributes(attrs...))
}

// AddRetryAttribute adds retry count information to the span.
func (o *OTELInstrumenter) AddRetryAttribute(span trace.Span, retryCount int) {
	if retryCount > 0 {
		span.SetAttributes(attribute.Int("liftcord.retry_count", retryCount))
	}
}

// AddCircuitBreakerAttribute adds circuit breaker state to the span.
func (o *OTELInstrumenter) AddCircuitBreakerAttribute(span trace.Span, state string) {
	span.SetAttributes(attribute.String("liftcord.circuit_breaker_state", state))
}

// AddPolicyEvent adds an event to the span indicating a policy action.
func (o *OTELInstrumenter) AddPolicyEvent(span trace.Span, eventName string, attrs ...attribute.KeyValue) {
	span.AddEvent(eventName, trace.WithAttributes(attrs...))
}
