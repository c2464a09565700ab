// Package azqueue publishes reservo events and failures to Azure Storage
// queues and consumes commands from one.
//
// Queue messages carry the codec-encoded document. Text codecs are sent as
// is; binary codecs are base64-encoded. The aggregate key travels inside the
// document, so no envelope is needed.
package azqueue

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Default queue names. Azure queue names are lowercase with hyphens.
const (
	DefaultEventQueue   = "reservation-events"
	DefaultErrorQueue   = "reservation-errors"
	DefaultCommandQueue = "reservation-commands"
)

// Queue is the subset of *azqueue.QueueClient used here.
type Queue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// NewQueue opens a queue client from a storage connection string, with the
// retry policy used for all reservo queue traffic.
func NewQueue(connStr, name string) (*azqueue.QueueClient, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 30 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, fmt.Errorf("reservo/azqueue: open queue %s: %w", name, err)
	}
	return q, nil
}

func encodeText(codec reservo.Codec, data []byte) string {
	if codec.Name() == "json" {
		return string(data)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func decodeText(codec reservo.Codec, text string) ([]byte, error) {
	if codec.Name() == "json" {
		return []byte(text), nil
	}
	return base64.StdEncoding.DecodeString(text)
}

var (
	_ reservo.EventSink = (*Publisher)(nil)
	_ reservo.ErrorSink = (*Publisher)(nil)
)

// Publisher enqueues events and failures on separate queues.
type Publisher struct {
	events   Queue
	failures Queue
	codec    reservo.Codec
	ttl      *int32
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithCodec sets the codec used for message bodies.
func WithCodec(codec reservo.Codec) Option {
	return func(p *Publisher) {
		p.codec = codec
	}
}

// WithMessageTTL sets how long published messages live in the queue.
func WithMessageTTL(d time.Duration) Option {
	return func(p *Publisher) {
		secs := int32(d / time.Second)
		p.ttl = &secs
	}
}

// NewPublisher creates a Publisher writing to the given queues.
func NewPublisher(events, failures Queue, opts ...Option) *Publisher {
	p := &Publisher{
		events:   events,
		failures: failures,
		codec:    reservo.NewJSONCodec(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishEvent enqueues evt on the event queue.
func (p *Publisher) PublishEvent(ctx context.Context, key string, evt reservo.Event) error {
	data, err := p.codec.EncodeEvent(evt)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, p.events, "event", data)
}

// PublishFailure enqueues failure on the error queue.
func (p *Publisher) PublishFailure(ctx context.Context, key string, failure *reservo.Failure) error {
	data, err := p.codec.EncodeFailure(failure)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, p.failures, "failure", data)
}

// SendCommand enqueues cmd on q for a Consumer to pick up.
func (p *Publisher) SendCommand(ctx context.Context, q Queue, cmd reservo.Command) error {
	data, err := p.codec.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, q, "command", data)
}

func (p *Publisher) enqueue(ctx context.Context, q Queue, subject string, data []byte) error {
	if q == nil {
		return fmt.Errorf("reservo/azqueue: no %s queue configured", subject)
	}
	var opts *azqueue.EnqueueMessageOptions
	if p.ttl != nil {
		opts = &azqueue.EnqueueMessageOptions{TimeToLive: p.ttl}
	}
	if _, err := q.EnqueueMessage(ctx, encodeText(p.codec, data), opts); err != nil {
		return fmt.Errorf("reservo/azqueue: enqueue %s: %w", subject, err)
	}
	return nil
}

// Consumer polls a command queue and hands each command to a HandleFunc.
type Consumer struct {
	queue        Queue
	codec        reservo.Codec
	logger       reservo.Logger
	pollInterval time.Duration
	maxDequeue   int64
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerCodec sets the codec used to decode commands.
func WithConsumerCodec(codec reservo.Codec) ConsumerOption {
	return func(c *Consumer) {
		c.codec = codec
	}
}

// WithLogger sets the consumer logger.
func WithLogger(logger reservo.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithPollInterval sets the wait between polls of an empty queue.
func WithPollInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.pollInterval = d
	}
}

// WithMaxDequeueCount sets how many deliveries a message gets before it is
// dropped as poison.
func WithMaxDequeueCount(n int64) ConsumerOption {
	return func(c *Consumer) {
		c.maxDequeue = n
	}
}

// NewConsumer creates a Consumer for q.
func NewConsumer(q Queue, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		queue:        q,
		codec:        reservo.NewJSONCodec(),
		logger:       reservo.NopLogger(),
		pollInterval: time.Second,
		maxDequeue:   5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is done. A message is deleted once handled, or when
// it cannot be decoded, or when it exceeds the max dequeue count. A
// collaborator fault leaves the message in the queue to become visible again.
func (c *Consumer) Run(ctx context.Context, handle reservo.HandleFunc) error {
	for {
		resp, err := c.queue.DequeueMessage(ctx, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Dequeue failed", "error", err)
			if !c.wait(ctx) {
				return nil
			}
			continue
		}
		if len(resp.Messages) == 0 {
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		for _, msg := range resp.Messages {
			if c.process(ctx, msg, handle) {
				c.delete(ctx, msg)
			}
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.pollInterval):
		return true
	}
}

// process reports whether msg should be deleted.
func (c *Consumer) process(ctx context.Context, msg *azqueue.DequeuedMessage, handle reservo.HandleFunc) bool {
	if msg.DequeueCount != nil && *msg.DequeueCount > c.maxDequeue {
		c.logger.Error("Dropping poison message", "messageId", deref(msg.MessageID), "dequeueCount", *msg.DequeueCount)
		return true
	}

	data, err := decodeText(c.codec, deref(msg.MessageText))
	if err == nil {
		var cmd reservo.Command
		cmd, err = c.codec.DecodeCommand(data)
		if err == nil {
			return c.dispatch(ctx, cmd, handle)
		}
	}

	c.logger.Warn("Skipping undecodable command", "messageId", deref(msg.MessageID), "error", err)
	return true
}

func (c *Consumer) dispatch(ctx context.Context, cmd reservo.Command, handle reservo.HandleFunc) bool {
	result, err := handle(ctx, cmd.AggregateKey, cmd)
	switch {
	case errors.Is(err, reservo.ErrCollaborator):
		c.logger.Warn("Command will be redelivered", "command", cmd.String(), "error", err)
		return false
	case err != nil:
		c.logger.Error("Command handling failed", "command", cmd.String(), "error", err)
	default:
		c.logger.Debug("Command consumed", "command", cmd.String(), "outcome", reservo.OutcomeOf(result, nil))
	}
	return true
}

func (c *Consumer) delete(ctx context.Context, msg *azqueue.DequeuedMessage) {
	if _, err := c.queue.DeleteMessage(ctx, deref(msg.MessageID), deref(msg.PopReceipt), nil); err != nil {
		c.logger.Warn("Delete message failed", "messageId", deref(msg.MessageID), "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
