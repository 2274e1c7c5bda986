package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the syncforge tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("syncforge")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartProbeSpan starts a span for a connectivity probe cycle.
	StartProbeSpan(ctx context.Context) (context.Context, trace.Span)

	// StartFlushSpan starts a span for a flush pass.
	StartFlushSpan(ctx context.Context, pending int) (context.Context, trace.Span)

	// StartDeliverySpan starts a span for one record delivery.
	// The delivery span should be a child of the flush span.
	StartDeliverySpan(ctx context.Context, recordID, recordType string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartProbeSpan starts a span for a connectivity probe cycle.
func (m *otelSpanManager) StartProbeSpan(ctx context.Context) (context.Context, trace.Span) {
	return tracer.Start(ctx, "syncforge.probe",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartFlushSpan starts a span for a flush pass.
func (m *otelSpanManager) StartFlushSpan(ctx context.Context, pending int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "syncforge.flush",
		trace.WithAttributes(
			attribute.Int("outbox.pending", pending),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartDeliverySpan starts a span for one record delivery.
func (m *otelSpanManager) StartDeliverySpan(ctx context.Context, recordID, recordType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "syncforge.deliver",
		trace.WithAttributes(
			attribute.String("record.id", recordID),
			attribute.String("record.type", recordType),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
