package tracing_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

func TestKafkaHeadersRoundTrip(t *testing.T) {
	tp, err := tracing.Init(context.Background(), "test", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	tp1 := tracing.Traceparent(ctx)
	assert.Contains(t, tp1, span.SpanContext().TraceID().String())

	headers := tracing.InjectKafkaHeaders(ctx, []kafka.Header{{Key: "source", Value: []byte("x")}})
	extracted := tracing.ExtractKafkaHeaders(context.Background(), headers)

	got := trace.SpanContextFromContext(extracted)
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
	assert.True(t, got.IsRemote())
}

func TestTraceparentWithoutSpan(t *testing.T) {
	assert.Empty(t, tracing.Traceparent(context.Background()))
}

func TestCarrierSetReplacesExistingKey(t *testing.T) {
	headers := []kafka.Header{{Key: "traceparent", Value: []byte("old")}, {Key: "event_type", Value: []byte("OrderCreated")}}
	c := tracing.KafkaCarrier{Headers: &headers}

	c.Set("traceparent", "new")
	c.Set("tracestate", "k=v")

	require.Len(t, headers, 3)
	assert.Equal(t, "new", c.Get("traceparent"))
	assert.Equal(t, "k=v", c.Get("tracestate"))
	assert.ElementsMatch(t, []string{"traceparent", "event_type", "tracestate"}, c.Keys())
	assert.Empty(t, c.Get("missing"))
}

func TestWithTraceparent(t *testing.T) {
	const valid = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	headers := tracing.WithTraceparent(nil, valid)
	require.Len(t, headers, 1)
	assert.Equal(t, valid, string(headers[0].Value))

	assert.Empty(t, tracing.WithTraceparent(nil, "not-a-traceparent"))
	assert.Empty(t, tracing.WithTraceparent(nil, ""))
}
