// Package tracing provides OpenTelemetry integration for reservo.
//
// Basic usage:
//
//	tp, _ := tracing.NewStdoutProvider(os.Stderr, "reservo")
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer()
//	orch.Use(tracing.CommandMiddleware(tracer))
//
// The command span records the command kind, aggregate key, outcome and
// emitted event kinds. Collaborator wrappers add a client span per store or
// sink call.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-reservo"
)

const (
	// TracerName is the name of the reservo tracer.
	TracerName = "github.com/AshkanYarmoradi/go-reservo"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "reservo"
)

// Tracer wraps an OpenTelemetry tracer for reservo operations.
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

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// NewStdoutProvider returns a TracerProvider that writes spans as JSON to w.
// Callers must Shutdown it to flush pending spans.
func NewStdoutProvider(w io.Writer, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("reservo/tracing: create exporter: %w", err)
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// Propagator returns the W3C trace context and baggage propagator used to
// carry spans across brokers.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// =============================================================================
// Command Middleware
// =============================================================================

// CommandMiddleware creates middleware that traces command handling.
func CommandMiddleware(tracer *Tracer) reservo.Middleware {
	return func(next reservo.HandleFunc) reservo.HandleFunc {
		return func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
			ctx, span := tracer.StartSpan(ctx, "command."+cmd.Kind,
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("reservo.service", tracer.serviceName),
				attribute.String("reservo.command.kind", cmd.Kind),
				attribute.String("reservo.command.id", cmd.ID.String()),
				attribute.String("reservo.aggregate_key", key),
			)
			if correlationID := reservo.CorrelationIDFromContext(ctx); correlationID != "" {
				span.SetAttributes(attribute.String("reservo.correlation_id", correlationID))
			}

			result, err := next(ctx, key, cmd)

			span.SetAttributes(attribute.String("reservo.outcome", reservo.OutcomeOf(result, err)))
			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			default:
				if f, ok := reservo.AsFailure(result); ok {
					span.SetAttributes(attribute.String("reservo.error_type", string(f.ErrorType)))
					if f.IsTechnical() {
						span.SetStatus(codes.Error, f.Message())
						break
					}
				}
				if s, ok := reservo.AsSuccess(result); ok {
					span.SetAttributes(attribute.StringSlice("reservo.events.kinds", reservo.EventTypes(s.Events)))
				}
				span.SetStatus(codes.Ok, "")
			}

			return result, err
		}
	}
}

// =============================================================================
// Collaborator wrappers
// =============================================================================

func (t *Tracer) collaboratorSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	ctx, span := t.StartSpan(ctx, "collaborator."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("reservo.service", t.serviceName),
		attribute.String("reservo.aggregate_key", key),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// StateStore wraps a reservo.StateStore with tracing.
type StateStore struct {
	store  reservo.StateStore
	tracer *Tracer
}

// WrapStateStore wraps store with tracing.
func WrapStateStore(store reservo.StateStore, tracer *Tracer) *StateStore {
	return &StateStore{store: store, tracer: tracer}
}

// Get implements reservo.StateStore.
func (s *StateStore) Get(ctx context.Context, key string) (reservo.StateMap, error) {
	ctx, span := s.tracer.collaboratorSpan(ctx, reservo.OpGetState, key)
	state, err := s.store.Get(ctx, key)
	if err == nil && state.HasErrorMarker() {
		span.SetAttributes(attribute.String("reservo.state.error", state.ErrorMessage()))
	}
	endSpan(span, err)
	return state, err
}

// Set implements reservo.StateStore.
func (s *StateStore) Set(ctx context.Context, key string, state reservo.StateMap) (reservo.StateMap, error) {
	ctx, span := s.tracer.collaboratorSpan(ctx, reservo.OpSetState, key)
	span.SetAttributes(attribute.Int("reservo.state.fields", state.Len()))
	stored, err := s.store.Set(ctx, key, state)
	endSpan(span, err)
	return stored, err
}

// EventSink wraps a reservo.EventSink with tracing.
type EventSink struct {
	sink   reservo.EventSink
	tracer *Tracer
}

// WrapEventSink wraps sink with tracing.
func WrapEventSink(sink reservo.EventSink, tracer *Tracer) *EventSink {
	return &EventSink{sink: sink, tracer: tracer}
}

// PublishEvent implements reservo.EventSink.
func (s *EventSink) PublishEvent(ctx context.Context, key string, evt reservo.Event) error {
	ctx, span := s.tracer.collaboratorSpan(ctx, reservo.OpPublishEvent, key)
	span.SetAttributes(
		attribute.String("reservo.event.kind", evt.Kind),
		attribute.String("reservo.event.id", evt.ID.String()),
	)
	err := s.sink.PublishEvent(ctx, key, evt)
	endSpan(span, err)
	return err
}

// ErrorSink wraps a reservo.ErrorSink with tracing.
type ErrorSink struct {
	sink   reservo.ErrorSink
	tracer *Tracer
}

// WrapErrorSink wraps sink with tracing.
func WrapErrorSink(sink reservo.ErrorSink, tracer *Tracer) *ErrorSink {
	return &ErrorSink{sink: sink, tracer: tracer}
}

// PublishFailure implements reservo.ErrorSink.
func (s *ErrorSink) PublishFailure(ctx context.Context, key string, failure *reservo.Failure) error {
	ctx, span := s.tracer.collaboratorSpan(ctx, reservo.OpPublishFailure, key)
	span.SetAttributes(
		attribute.String("reservo.error_type", string(failure.ErrorType)),
		attribute.String("reservo.command.kind", failure.Input.Kind),
	)
	err := s.sink.PublishFailure(ctx, key, failure)
	endSpan(span, err)
	return err
}
