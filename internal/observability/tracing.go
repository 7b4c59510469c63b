// Package observability carries the orchestration core's distributed
// tracing and Prometheus metrics: a span per Router turn and per tool
// execution, correlated via the trace ID, plus the counters/histograms the
// Router, ToolExecutor, and RateLimiter publish.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/haasonsaas/orchestrator-core"

// tracer is the package-wide Tracer handle. Until NewProvider installs a
// real TracerProvider, otel's global default is a no-op, so Start/End calls
// anywhere in the tree are always safe even when tracing isn't configured.
var tracer = otel.Tracer(instrumentationName)

// NewProvider builds an SDK TracerProvider with no exporter attached and
// installs it as the global provider. Spans get real trace/span IDs (so
// GetTraceID/GetSpanID are meaningful for correlation in the Journal and
// diagnostic log) but are not shipped anywhere; a host wanting real export
// registers its own exporter-backed provider instead of calling this.
func NewProvider() *sdktrace.TracerProvider {
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(instrumentationName)
	return provider
}

// StartSpan begins a span named name as a child of any span already in ctx.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span (if non-nil) and closes it. Call via defer
// immediately after StartSpan.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetTraceID returns the trace ID from the context as a string.
// Returns empty string if no span is active.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the span ID from the context as a string.
// Returns empty string if no span is active.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().SpanID().String()
}
