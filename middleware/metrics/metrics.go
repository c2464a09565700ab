// Package metrics provides Prometheus metrics integration for reservo.
//
// Basic usage:
//
//	m := metrics.New()
//	prometheus.MustRegister(m.Collectors()...)
//
//	orch := reservo.NewOrchestrator(resolver, m.WrapEventSink(sink), m.WrapErrorSink(sink), m.WrapStateStore(store))
//	orch.Use(m.CommandMiddleware())
//
// The metrics collected include:
//   - Command counts by outcome and durations
//   - Collaborator operations (get/set state, publish event/failure)
//   - Published events by kind and failures by error type
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Default metric labels.
const (
	LabelCommandKind = "command_kind"
	LabelEventKind   = "event_kind"
	LabelOperation   = "operation"
	LabelStatus      = "status"
	LabelOutcome     = "outcome"
	LabelErrorType   = "error_type"
	LabelService     = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Ensure Metrics can be used as the root package's collector.
var _ reservo.MetricsCollector = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for reservo.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Command metrics
	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight *prometheus.GaugeVec

	// Collaborator metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	eventsPublished   *prometheus.CounterVec
	failuresPublished *prometheus.CounterVec

	// Error metrics
	errorsTotal *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "reservo",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) initMetrics() {
	m.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "commands_total",
			Help:      "Total number of commands handled, by outcome.",
		},
		[]string{LabelService, LabelCommandKind, LabelOutcome},
	)

	m.commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "command_duration_seconds",
			Help:      "Duration of command handling in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelCommandKind},
	)

	m.commandsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "commands_in_flight",
			Help:      "Number of commands currently being handled.",
		},
		[]string{LabelService, LabelCommandKind},
	)

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "collaborator_operations_total",
			Help:      "Total number of state store and sink operations.",
		},
		[]string{LabelService, LabelOperation, LabelStatus},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "collaborator_operation_duration_seconds",
			Help:      "Duration of state store and sink operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelOperation},
	)

	m.eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_published_total",
			Help:      "Total number of events published.",
		},
		[]string{LabelService, LabelEventKind},
	)

	m.failuresPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "failures_published_total",
			Help:      "Total number of failures published, by error type.",
		},
		[]string{LabelService, LabelErrorType},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors returned by Handle, by type.",
		},
		[]string{LabelService, LabelErrorType},
	)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commandsTotal,
		m.commandDuration,
		m.commandsInFlight,
		m.operationsTotal,
		m.operationDuration,
		m.eventsPublished,
		m.failuresPublished,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Command Middleware
// =============================================================================

// RecordCommand implements reservo.MetricsCollector.
func (m *Metrics) RecordCommand(kind string, duration time.Duration, outcome string, events int) {
	m.commandDuration.WithLabelValues(m.serviceName, kind).Observe(duration.Seconds())
	m.commandsTotal.WithLabelValues(m.serviceName, kind, outcome).Inc()
}

// CommandMiddleware returns middleware that records command metrics.
func (m *Metrics) CommandMiddleware() reservo.Middleware {
	record := reservo.MetricsMiddleware(m)

	return func(next reservo.HandleFunc) reservo.HandleFunc {
		counted := record(next)
		return func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
			m.commandsInFlight.WithLabelValues(m.serviceName, cmd.Kind).Inc()
			defer m.commandsInFlight.WithLabelValues(m.serviceName, cmd.Kind).Dec()

			result, err := counted(ctx, key, cmd)
			if err != nil {
				m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
			}
			return result, err
		}
	}
}

// errorTypeName extracts the error type name based on sentinel errors.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	var cerr *reservo.CollaboratorError
	switch {
	case errors.As(err, &cerr):
		return "collaborator_" + cerr.Operation
	case errors.Is(err, reservo.ErrHandlerPanicked):
		return "handler_panicked"
	case errors.Is(err, reservo.ErrNilCollaborator):
		return "nil_collaborator"
	case errors.Is(err, reservo.ErrCommandAlreadyProcessed):
		return "command_already_processed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}

// =============================================================================
// Collaborator wrappers
// =============================================================================

func (m *Metrics) observe(op string, start time.Time, err error) {
	m.operationDuration.WithLabelValues(m.serviceName, op).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.operationsTotal.WithLabelValues(m.serviceName, op, status).Inc()
}

// StateStore wraps a reservo.StateStore with metrics.
type StateStore struct {
	store   reservo.StateStore
	metrics *Metrics
}

// WrapStateStore wraps store with metrics collection.
func (m *Metrics) WrapStateStore(store reservo.StateStore) *StateStore {
	return &StateStore{store: store, metrics: m}
}

// Get implements reservo.StateStore.
func (s *StateStore) Get(ctx context.Context, key string) (reservo.StateMap, error) {
	start := time.Now()
	state, err := s.store.Get(ctx, key)
	s.metrics.observe(reservo.OpGetState, start, err)
	return state, err
}

// Set implements reservo.StateStore.
func (s *StateStore) Set(ctx context.Context, key string, state reservo.StateMap) (reservo.StateMap, error) {
	start := time.Now()
	stored, err := s.store.Set(ctx, key, state)
	s.metrics.observe(reservo.OpSetState, start, err)
	return stored, err
}

// EventSink wraps a reservo.EventSink with metrics.
type EventSink struct {
	sink    reservo.EventSink
	metrics *Metrics
}

// WrapEventSink wraps sink with metrics collection.
func (m *Metrics) WrapEventSink(sink reservo.EventSink) *EventSink {
	return &EventSink{sink: sink, metrics: m}
}

// PublishEvent implements reservo.EventSink.
func (s *EventSink) PublishEvent(ctx context.Context, key string, evt reservo.Event) error {
	start := time.Now()
	err := s.sink.PublishEvent(ctx, key, evt)
	s.metrics.observe(reservo.OpPublishEvent, start, err)
	if err == nil {
		s.metrics.eventsPublished.WithLabelValues(s.metrics.serviceName, evt.Kind).Inc()
	}
	return err
}

// ErrorSink wraps a reservo.ErrorSink with metrics.
type ErrorSink struct {
	sink    reservo.ErrorSink
	metrics *Metrics
}

// WrapErrorSink wraps sink with metrics collection.
func (m *Metrics) WrapErrorSink(sink reservo.ErrorSink) *ErrorSink {
	return &ErrorSink{sink: sink, metrics: m}
}

// PublishFailure implements reservo.ErrorSink.
func (s *ErrorSink) PublishFailure(ctx context.Context, key string, failure *reservo.Failure) error {
	start := time.Now()
	err := s.sink.PublishFailure(ctx, key, failure)
	s.metrics.observe(reservo.OpPublishFailure, start, err)
	if err == nil {
		s.metrics.failuresPublished.WithLabelValues(s.metrics.serviceName, string(failure.ErrorType)).Inc()
	}
	return err
}

// =============================================================================
// Getters for testing
// =============================================================================

// CommandsTotal returns the commands counter.
func (m *Metrics) CommandsTotal() *prometheus.CounterVec { return m.commandsTotal }

// CommandDuration returns the command duration histogram.
func (m *Metrics) CommandDuration() *prometheus.HistogramVec { return m.commandDuration }

// CommandsInFlight returns the in-flight commands gauge.
func (m *Metrics) CommandsInFlight() *prometheus.GaugeVec { return m.commandsInFlight }

// OperationsTotal returns the collaborator operations counter.
func (m *Metrics) OperationsTotal() *prometheus.CounterVec { return m.operationsTotal }

// EventsPublished returns the published events counter.
func (m *Metrics) EventsPublished() *prometheus.CounterVec { return m.eventsPublished }

// FailuresPublished returns the published failures counter.
func (m *Metrics) FailuresPublished() *prometheus.CounterVec { return m.failuresPublished }

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec { return m.errorsTotal }
