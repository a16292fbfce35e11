// Package tracing wraps the OpenTelemetry SDK tracer the way the teacher's
// monitoring.OpenTelemetryTracer does: a thin facade that starts spans for
// session start and stop, with a no-op fallback when
// tracing is disabled so call sites never branch on whether it's active.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for SDK operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, oteltrace.Span)
}

// New constructs a Tracer. When enabled is false, operations run against a
// no-op TracerProvider (zero overhead, stable API).
func New(serviceName string, enabled bool) Tracer {
	if !enabled {
		return &tracerFacade{tracer: oteltrace.NewNoopTracerProvider().Tracer(serviceName)}
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return &tracerFacade{tracer: tp.Tracer(serviceName)}
}

type tracerFacade struct {
	tracer oteltrace.Tracer
}

func (t *tracerFacade) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, oteltrace.Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}
	return t.tracer.Start(ctx, name, oteltrace.WithAttributes(kv...))
}

// RecordError records err on the span found in ctx, if any, and tags it
// with errType.
func RecordError(ctx context.Context, errType string, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", errType),
		attribute.String("error.message", fmt.Sprintf("%v", err)),
	)
}
