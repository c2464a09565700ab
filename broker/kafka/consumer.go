package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-reservo"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

// messageReader is the subset of *kafkago.Reader used by the consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads commands from a topic and hands them to a reservo.HandleFunc.
// The message key is the aggregate key. Offsets are committed after the
// command is handled, so a crash replays at most the in-flight command.
type Consumer struct {
	reader     messageReader
	codec      reservo.Codec
	logger     reservo.Logger
	propagator propagation.TextMapPropagator
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Codec   reservo.Codec
	Logger  reservo.Logger

	// Propagator reads trace context from message headers. The global otel
	// propagator is used when nil.
	Propagator propagation.TextMapPropagator
}

// NewConsumer creates a Consumer reading from the configured topic.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultCommandTopic
	}
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultGroupID
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	c := newConsumer(reader, cfg.Codec, cfg.Logger)
	c.propagator = cfg.Propagator
	return c
}

func newConsumer(reader messageReader, codec reservo.Codec, logger reservo.Logger) *Consumer {
	if codec == nil {
		codec = reservo.NewJSONCodec()
	}
	if logger == nil {
		logger = reservo.NopLogger()
	}
	return &Consumer{reader: reader, codec: codec, logger: logger}
}

// Run consumes until ctx is done. Messages that do not decode are logged
// and skipped. A handler error other than a collaborator fault is logged
// and the offset committed; collaborator faults stop the consumer so the
// command is redelivered on restart.
func (c *Consumer) Run(ctx context.Context, handle reservo.HandleFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reservo/kafka: fetch: %w", err)
		}

		if err := c.process(ctx, msg, handle); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reservo/kafka: commit: %w", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafkago.Message, handle reservo.HandleFunc) error {
	cmd, err := c.codec.DecodeCommand(msg.Value)
	if err != nil {
		c.logger.Warn("Skipping undecodable command",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	key := string(msg.Key)
	if key == "" {
		key = cmd.AggregateKey
	}

	ctx = extractTrace(ctx, c.propagator, msg.Headers)
	for _, h := range msg.Headers {
		if h.Key == HeaderCorrelationID {
			ctx = reservo.WithCorrelationID(ctx, string(h.Value))
		}
	}

	result, err := handle(ctx, key, cmd)
	switch {
	case errors.Is(err, reservo.ErrCollaborator):
		return fmt.Errorf("reservo/kafka: handle %s: %w", cmd, err)
	case err != nil:
		c.logger.Error("Command handling failed",
			"command", cmd.String(),
			"error", err,
		)
	default:
		c.logger.Debug("Command consumed",
			"command", cmd.String(),
			"outcome", reservo.OutcomeOf(result, nil),
			"offset", msg.Offset,
		)
	}
	return nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// CommandProducer writes commands to the command topic. It is the
// producing side of Consumer and backs the send command of the CLI.
type CommandProducer struct {
	publisher *Publisher
	topic     string
}

// NewCommandProducer wraps p to write commands to topic.
func NewCommandProducer(p *Publisher, topic string) *CommandProducer {
	if topic == "" {
		topic = DefaultCommandTopic
	}
	return &CommandProducer{publisher: p, topic: topic}
}

// Send writes cmd keyed by key.
func (c *CommandProducer) Send(ctx context.Context, key string, cmd reservo.Command) error {
	value, err := c.publisher.codec.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: c.publisher.headers(ctx,
			kafkago.Header{Key: HeaderKind, Value: []byte(cmd.Kind)},
			kafkago.Header{Key: HeaderID, Value: []byte(cmd.ID.String())},
		),
	}
	return c.publisher.write(ctx, c.topic, msg)
}
