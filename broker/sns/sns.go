// Package sns publishes reservo events and failures to AWS SNS topics.
//
// For FIFO topics (ARN ending in ".fifo") the aggregate key is used as the
// message group id, so SNS preserves per-aggregate ordering, and the event or
// command id is used as the deduplication id.
package sns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/AshkanYarmoradi/go-reservo"
)

// ErrNoClient is returned when publishing without a configured client.
var ErrNoClient = errors.New("reservo/sns: client not configured")

// ErrNoTopic is returned when publishing to a sink with no topic ARN.
var ErrNoTopic = errors.New("reservo/sns: topic ARN not configured")

// SNSClient defines the subset of the SNS API used by the publisher.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var (
	_ reservo.EventSink = (*Publisher)(nil)
	_ reservo.ErrorSink = (*Publisher)(nil)
)

// Publisher publishes events and failures to SNS topics.
type Publisher struct {
	client        SNSClient
	eventTopicARN string
	errorTopicARN string
	codec         reservo.Codec
}

// Option configures an SNS Publisher.
type Option func(*Publisher)

// WithSNSClient sets a custom SNS client.
func WithSNSClient(client SNSClient) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithTopics sets the event and error topic ARNs.
func WithTopics(eventTopicARN, errorTopicARN string) Option {
	return func(p *Publisher) {
		p.eventTopicARN = eventTopicARN
		p.errorTopicARN = errorTopicARN
	}
}

// WithCodec sets the codec used for message bodies. Binary codecs are not
// suitable since SNS messages are text.
func WithCodec(codec reservo.Codec) Option {
	return func(p *Publisher) {
		p.codec = codec
	}
}

// New creates a new SNS Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{codec: reservo.NewJSONCodec()}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// NewFromEnvironment creates a Publisher whose client is built from the
// default AWS configuration chain (environment, shared config, IMDS).
// An empty region leaves the region to that chain.
func NewFromEnvironment(ctx context.Context, region string, opts ...Option) (*Publisher, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("reservo/sns: load aws config: %w", err)
	}

	return New(append([]Option{WithSNSClient(sns.NewFromConfig(cfg))}, opts...)...), nil
}

// PublishEvent publishes evt to the event topic.
func (p *Publisher) PublishEvent(ctx context.Context, key string, evt reservo.Event) error {
	body, err := p.codec.EncodeEvent(evt)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"kind": evt.Kind,
		"id":   evt.ID.String(),
	}
	return p.publish(ctx, p.eventTopicARN, key, evt.ID.String(), body, attrs)
}

// PublishFailure publishes failure to the error topic.
func (p *Publisher) PublishFailure(ctx context.Context, key string, failure *reservo.Failure) error {
	body, err := p.codec.EncodeFailure(failure)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"kind":       failure.Input.Kind,
		"error-type": string(failure.ErrorType),
	}
	return p.publish(ctx, p.errorTopicARN, key, failure.Input.ID.String(), body, attrs)
}

func (p *Publisher) publish(ctx context.Context, topicARN, key, dedupID string, body []byte, attrs map[string]string) error {
	if p.client == nil {
		return ErrNoClient
	}
	if topicARN == "" {
		return ErrNoTopic
	}

	if id := reservo.CorrelationIDFromContext(ctx); id != "" {
		attrs["correlation-id"] = id
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: make(map[string]types.MessageAttributeValue, len(attrs)),
	}
	for k, v := range attrs {
		input.MessageAttributes[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	if isFIFO(topicARN) {
		input.MessageGroupId = aws.String(key)
		input.MessageDeduplicationId = aws.String(dedupID)
	}

	if _, err := p.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("reservo/sns: failed to publish to %s: %w", topicARN, err)
	}
	return nil
}

func isFIFO(topicARN string) bool {
	return strings.HasSuffix(topicARN, ".fifo")
}
