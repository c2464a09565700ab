// Package webhook delivers reservo events and failures as HTTP POST requests.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Request headers set on every delivery.
const (
	HeaderKind          = "X-Reservo-Kind"
	HeaderKey           = "X-Reservo-Key"
	HeaderID            = "X-Reservo-Id"
	HeaderErrorType     = "X-Reservo-Error-Type"
	HeaderCorrelationID = "X-Correlation-Id"
)

// ErrNoURL is returned when delivering to a sink with no endpoint.
var ErrNoURL = errors.New("reservo/webhook: endpoint URL not configured")

var (
	_ reservo.EventSink = (*Publisher)(nil)
	_ reservo.ErrorSink = (*Publisher)(nil)
)

// Publisher posts events to one endpoint and failures to another.
type Publisher struct {
	client         *http.Client
	eventURL       string
	errorURL       string
	codec          reservo.Codec
	defaultHeaders map[string]string
}

// Option configures a webhook Publisher.
type Option func(*Publisher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.client.Timeout = d
	}
}

// WithEndpoints sets the event and failure endpoint URLs.
func WithEndpoints(eventURL, errorURL string) Option {
	return func(p *Publisher) {
		p.eventURL = eventURL
		p.errorURL = errorURL
	}
}

// WithCodec sets the body codec. Content-Type follows the codec name.
func WithCodec(codec reservo.Codec) Option {
	return func(p *Publisher) {
		p.codec = codec
	}
}

// WithDefaultHeaders sets default headers added to all requests.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(p *Publisher) {
		for k, v := range headers {
			p.defaultHeaders[k] = v
		}
	}
}

// New creates a new webhook Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		codec:          reservo.NewJSONCodec(),
		defaultHeaders: map[string]string{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// PublishEvent posts evt to the event endpoint.
func (p *Publisher) PublishEvent(ctx context.Context, key string, evt reservo.Event) error {
	body, err := p.codec.EncodeEvent(evt)
	if err != nil {
		return err
	}
	return p.post(ctx, p.eventURL, body, map[string]string{
		HeaderKind: evt.Kind,
		HeaderKey:  key,
		HeaderID:   evt.ID.String(),
	})
}

// PublishFailure posts failure to the failure endpoint.
func (p *Publisher) PublishFailure(ctx context.Context, key string, failure *reservo.Failure) error {
	body, err := p.codec.EncodeFailure(failure)
	if err != nil {
		return err
	}
	return p.post(ctx, p.errorURL, body, map[string]string{
		HeaderKind:      failure.Input.Kind,
		HeaderKey:       key,
		HeaderID:        failure.Input.ID.String(),
		HeaderErrorType: string(failure.ErrorType),
	})
}

func (p *Publisher) post(ctx context.Context, url string, body []byte, headers map[string]string) error {
	if url == "" {
		return ErrNoURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reservo/webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType(p.codec.Name()))
	for k, v := range p.defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if id := reservo.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(HeaderCorrelationID, id)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("reservo/webhook: request failed for %s: %w", url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("reservo/webhook: server error %d from %s", resp.StatusCode, url)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("reservo/webhook: client error %d from %s", resp.StatusCode, url)
	}
	return nil
}

func contentType(codec string) string {
	switch codec {
	case "json":
		return "application/json"
	case "protobuf":
		return "application/x-protobuf"
	default:
		return "application/x-" + codec
	}
}
