package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier exposes message headers to an OpenTelemetry propagator.
type headerCarrier struct {
	headers *[]kafkago.Header
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafkago.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// propagatorOrGlobal resolves the global propagator at call time so one
// installed after construction is still honoured.
func propagatorOrGlobal(p propagation.TextMapPropagator) propagation.TextMapPropagator {
	if p != nil {
		return p
	}
	return otel.GetTextMapPropagator()
}

func injectTrace(ctx context.Context, p propagation.TextMapPropagator, headers *[]kafkago.Header) {
	propagatorOrGlobal(p).Inject(ctx, headerCarrier{headers: headers})
}

func extractTrace(ctx context.Context, p propagation.TextMapPropagator, headers []kafkago.Header) context.Context {
	return propagatorOrGlobal(p).Extract(ctx, headerCarrier{headers: &headers})
}
