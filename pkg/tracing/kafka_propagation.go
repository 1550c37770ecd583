package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const TraceparentHeader = "traceparent"

// KafkaCarrier lets a propagator read and write message headers in place.
// Set replaces an existing header with the same key.
type KafkaCarrier struct {
	Headers *[]kafka.Header
}

var _ propagation.TextMapCarrier = KafkaCarrier{}

func (c KafkaCarrier) Get(key string) string {
	for _, h := range *c.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c KafkaCarrier) Set(key, value string) {
	for i, h := range *c.Headers {
		if h.Key == key {
			(*c.Headers)[i].Value = []byte(value)
			return
		}
	}
	*c.Headers = append(*c.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c KafkaCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.Headers))
	for _, h := range *c.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func InjectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	otel.GetTextMapPropagator().Inject(ctx, KafkaCarrier{Headers: &headers})
	return headers
}

func ExtractKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, KafkaCarrier{Headers: &headers})
}

// WithTraceparent sets a traceparent captured earlier, e.g. when an outbox row
// was written. Malformed values are dropped.
func WithTraceparent(headers []kafka.Header, traceparent string) []kafka.Header {
	if traceparent == "" {
		return headers
	}
	ctx := propagation.TraceContext{}.Extract(context.Background(),
		propagation.MapCarrier{TraceparentHeader: traceparent})
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return headers
	}
	KafkaCarrier{Headers: &headers}.Set(TraceparentHeader, traceparent)
	return headers
}

// ContextWithTraceparent makes a stored traceparent the remote parent of spans
// started from the returned context. Malformed values leave ctx unchanged.
func ContextWithTraceparent(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier{TraceparentHeader: traceparent})
}
