package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	fctx "github.com/Ramsey-B/fern/pkg/context"
)

// RunIDAttribute tags spans started inside a match or lifecycle run.
const RunIDAttribute = "fern.run_id"

var tracer trace.Tracer

// SetTracer sets the tracer to be used for tracing.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// activeSpan returns the recording span of ctx, or nil when tracing is off.
func activeSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// StartSpan starts a span named after the operation. Spans inside a run carry its run id so a
// whole match or lifecycle run can be found from any of its spans.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	var opts []trace.SpanStartOption
	if runID := fctx.GetRunID(ctx); runID != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(RunIDAttribute, runID)))
	}
	return tracer.Start(ctx, spanName, opts...)
}

// GetTraceParent returns the W3C traceparent of the active span, for kafka message headers.
func GetTraceParent(ctx context.Context) string {
	if activeSpan(ctx) == nil {
		return ""
	}

	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}

// GetTraceID returns the trace ID of the active span, for error responses.
func GetTraceID(ctx context.Context) string {
	span := activeSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
