package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	fctx "github.com/Ramsey-B/fern/pkg/context"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(provider.Tracer("test"))
	t.Cleanup(func() {
		SetTracer(nil)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestStartSpanWithoutTracer(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartSpan(context.Background(), "noop")
	span.End()

	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetTraceParent(ctx))
}

func TestStartSpanTagsRunID(t *testing.T) {
	recorder := withRecorder(t)

	ctx := fctx.SetRunID(context.Background(), "run-1")
	ctx, span := StartSpan(ctx, "matching.Service.Match")
	traceID := GetTraceID(ctx)
	traceParent := GetTraceParent(ctx)
	span.End()

	_, plain := StartSpan(context.Background(), "registry.Registry.Load")
	plain.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Contains(t, spans[0].Attributes(), attribute.String(RunIDAttribute, "run-1"))
	assert.Empty(t, spans[1].Attributes())

	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.Contains(t, traceParent, traceID)
}
