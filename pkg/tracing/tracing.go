// Package tracing wraps the OpenTelemetry tracer used by every clover service.
// Spans are no-ops until Setup (or SetTracer) installs a tracer.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// listing batches carry W3C trace context in their Kafka headers
var headerPropagator = propagation.TraceContext{}

// SetTracer sets the tracer to be used for tracing.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// GetActiveSpan returns the active span from the context, or nil when
// tracing is off or ctx carries no valid span.
func GetActiveSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// StartSpan starts a new span with the given name and returns the context and span.
// Without a configured tracer it returns the span already on ctx (a no-op span).
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceParent returns the W3C traceparent header for the active span.
func GetTraceParent(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}

	carrier := propagation.MapCarrier{}
	headerPropagator.Inject(ctx, carrier)

	return carrier.Get("traceparent")
}

// ContinueFromHeaders returns ctx carrying the remote span described by a
// traceparent header, so spans started from it join the producer's trace.
// Headers without trace context leave ctx unchanged.
func ContinueFromHeaders(ctx context.Context, headers map[string]string) context.Context {
	if headers["traceparent"] == "" {
		return ctx
	}
	return headerPropagator.Extract(ctx, propagation.MapCarrier(headers))
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
