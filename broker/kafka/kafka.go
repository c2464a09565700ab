// Package kafka publishes reservo events and failures to Kafka topics and
// consumes commands from a Kafka topic, using github.com/segmentio/kafka-go.
//
// Messages are keyed by aggregate key and written with a hash balancer, so
// every message for one aggregate lands on the same partition in order.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-reservo"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

// Default topic names.
const (
	DefaultEventTopic   = "events-topic"
	DefaultErrorTopic   = "errors-topic"
	DefaultCommandTopic = "reservation-events"
	DefaultGroupID      = "reservation-event-consumer-group"
)

// Header keys set on published messages.
const (
	HeaderKind          = "kind"
	HeaderID            = "id"
	HeaderErrorType     = "error-type"
	HeaderCodec         = "codec"
	HeaderCorrelationID = "correlation-id"
)

// messageWriter is the subset of *kafkago.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Ensure Publisher implements both sinks.
var (
	_ reservo.EventSink = (*Publisher)(nil)
	_ reservo.ErrorSink = (*Publisher)(nil)
)

// Publisher writes events to the event topic and failures to the error topic.
type Publisher struct {
	brokers      []string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	transport    kafkago.RoundTripper
	eventTopic   string
	errorTopic   string
	codec        reservo.Codec
	propagator   propagation.TextMapPropagator

	mu      sync.RWMutex
	writers map[string]messageWriter
	dial    func(topic string) messageWriter
}

// Option configures a Kafka Publisher.
type Option func(*Publisher)

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(p *Publisher) {
		p.brokers = brokers
	}
}

// WithPropagator sets the propagator that writes trace context into
// message headers. The global otel propagator is used when unset.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(pub *Publisher) {
		pub.propagator = p
	}
}

// WithBalancer sets the message balancer (partitioner).
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(p *Publisher) {
		p.balancer = balancer
	}
}

// WithBatchTimeout sets the batch timeout for the writer.
func WithBatchTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.batchTimeout = d
	}
}

// WithTopics sets the event and error topics.
func WithTopics(eventTopic, errorTopic string) Option {
	return func(p *Publisher) {
		p.eventTopic = eventTopic
		p.errorTopic = errorTopic
	}
}

// WithCodec sets the codec used for message values.
func WithCodec(codec reservo.Codec) Option {
	return func(p *Publisher) {
		p.codec = codec
	}
}

// New creates a new Kafka Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		brokers:      []string{"localhost:9092"},
		balancer:     &kafkago.Hash{},
		batchTimeout: 10 * time.Millisecond,
		eventTopic:   DefaultEventTopic,
		errorTopic:   DefaultErrorTopic,
		codec:        reservo.NewJSONCodec(),
		writers:      make(map[string]messageWriter),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.dial == nil {
		p.dial = p.newWriter
	}

	return p
}

// PublishEvent writes evt to the event topic keyed by key.
func (p *Publisher) PublishEvent(ctx context.Context, key string, evt reservo.Event) error {
	value, err := p.codec.EncodeEvent(evt)
	if err != nil {
		return err
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: p.headers(ctx,
			kafkago.Header{Key: HeaderKind, Value: []byte(evt.Kind)},
			kafkago.Header{Key: HeaderID, Value: []byte(evt.ID.String())},
		),
	}
	return p.write(ctx, p.eventTopic, msg)
}

// PublishFailure writes failure to the error topic keyed by key.
func (p *Publisher) PublishFailure(ctx context.Context, key string, failure *reservo.Failure) error {
	value, err := p.codec.EncodeFailure(failure)
	if err != nil {
		return err
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: p.headers(ctx,
			kafkago.Header{Key: HeaderKind, Value: []byte(failure.Input.Kind)},
			kafkago.Header{Key: HeaderErrorType, Value: []byte(failure.ErrorType)},
		),
	}
	return p.write(ctx, p.errorTopic, msg)
}

func (p *Publisher) headers(ctx context.Context, extra ...kafkago.Header) []kafkago.Header {
	headers := append(extra, kafkago.Header{Key: HeaderCodec, Value: []byte(p.codec.Name())})
	if id := reservo.CorrelationIDFromContext(ctx); id != "" {
		headers = append(headers, kafkago.Header{Key: HeaderCorrelationID, Value: []byte(id)})
	}
	injectTrace(ctx, p.propagator, &headers)
	return headers
}

func (p *Publisher) write(ctx context.Context, topic string, msg kafkago.Message) error {
	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("reservo/kafka: failed to write to topic %s: %w", topic, err)
	}
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			return err
		}
		delete(p.writers, topic)
	}
	return nil
}

// getWriter returns or creates a writer for the given topic.
func (p *Publisher) getWriter(topic string) messageWriter {
	p.mu.RLock()
	if w, ok := p.writers[topic]; ok {
		p.mu.RUnlock()
		return w
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := p.dial(topic)
	p.writers[topic] = w
	return w
}

func (p *Publisher) newWriter(topic string) messageWriter {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               p.balancer,
		BatchTimeout:           p.batchTimeout,
		Transport:              p.transport,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
