// Package tracing provides OpenTelemetry integration for sagakit.
//
// This package enables distributed tracing for message dispatch and
// saga processing.
//
// Basic usage:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer()
//	bus := sagakit.NewBus(sagakit.WithMiddleware(tracing.DispatchMiddleware(tracer)))
//
// The middleware captures:
//   - Message type and dispatch duration
//   - Saga correlation ids from dispatch metadata
//   - Success/failure status with error details
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sagakit/sagakit"
)

const (
	// TracerName is the name of the sagakit tracer.
	TracerName = "github.com/sagakit/sagakit"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "sagakit"
)

// Tracer wraps an OpenTelemetry tracer for sagakit operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// DispatchMiddleware creates middleware that traces message dispatch.
func DispatchMiddleware(tracer *Tracer) sagakit.Middleware {
	return func(next sagakit.HandlerFunc) sagakit.HandlerFunc {
		return func(ctx context.Context, msg sagakit.Message, meta sagakit.Metadata) (sagakit.Result, error) {
			spanName := fmt.Sprintf("dispatch.%s", msg.MessageType())

			ctx, span := tracer.StartSpan(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			attrs := []attribute.KeyValue{
				attribute.String("sagakit.service", tracer.serviceName),
				attribute.String("sagakit.message.type", msg.MessageType()),
			}
			if event, ok := msg.(sagakit.Event); ok {
				attrs = append(attrs, attribute.String("sagakit.saga.id", event.SagaID()))
				if step := event.StepID(); step != "" {
					attrs = append(attrs, attribute.String("sagakit.step.id", step))
				}
			}
			if sagaType := meta.Get(sagakit.MetaSagaType); sagaType != "" {
				attrs = append(attrs, attribute.String("sagakit.saga.type", sagaType))
			}
			if timeoutID := meta.Get(sagakit.MetaTimeoutID); timeoutID != "" {
				attrs = append(attrs, attribute.String("sagakit.timeout.id", timeoutID))
			}
			span.SetAttributes(attrs...)

			result, err := next(ctx, msg, meta)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if result.IsError() {
				span.RecordError(result.Error)
				span.SetStatus(codes.Error, result.Error.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}

			return result, err
		}
	}
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError records an error on the current span.
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
