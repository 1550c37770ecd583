package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

// Envelope headers set on every message. Event headers with the same keys
// are dropped.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderAggregateID   = "aggregate_id"
	HeaderOccurredAt    = "occurred_at"
	HeaderContentType   = "content-type"
)

var envelopeKeys = map[string]bool{
	HeaderEventID:             true,
	HeaderEventType:           true,
	HeaderAggregateType:       true,
	HeaderAggregateID:         true,
	HeaderOccurredAt:          true,
	HeaderContentType:         true,
	tracing.TraceparentHeader: true,
}

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher publishes outbox events. Messages are keyed by aggregate id so
// all events of one order share a partition and keep their write order.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
	routes   map[string]string
	tracer   trace.Tracer
}

type DispatcherOption func(*Dispatcher)

// WithRoute publishes events of eventType to topic instead of the default.
func WithRoute(eventType, topic string) DispatcherOption {
	return func(d *Dispatcher) { d.routes[eventType] = topic }
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:      log,
		producer: producer,
		topic:    topic,
		routes:   map[string]string{},
		tracer:   otel.Tracer("outbox-dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) TopicFor(eventType string) string {
	if t, ok := d.routes[eventType]; ok {
		return t
	}
	return d.topic
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	topic := d.TopicFor(event.Type)
	ctx = tracing.ContextWithTraceparent(ctx, event.Traceparent)
	ctx, span := d.tracer.Start(ctx, "outbox.Dispatch "+event.Type,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.Int64("outbox.event_id", event.ID),
			attribute.String("outbox.aggregate_id", event.AggregateID),
		))
	defer span.End()

	msg := kafka.Message{
		Topic:   topic,
		Key:     PartitionKey(event),
		Value:   event.Payload,
		Headers: tracing.WithTraceparent(envelope(event), tracing.Traceparent(ctx)),
		Time:    event.CreatedAt,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "topic", topic, "err", err)
		return fmt.Errorf("dispatch event %d: %w", event.ID, err)
	}
	d.log.Info("outbox dispatched", "event_id", event.ID, "type", event.Type, "topic", topic, "aggregate_id", event.AggregateID)
	return nil
}

// PartitionKey is the aggregate id, or type:event id for events without one.
func PartitionKey(e Event) []byte {
	if e.AggregateID != "" {
		return []byte(e.AggregateID)
	}
	return []byte(e.AggregateType + ":" + strconv.FormatInt(e.ID, 10))
}

func envelope(e Event) []kafka.Header {
	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		if !envelopeKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys)+len(envelopeKeys))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(e.Headers[k])})
	}
	headers = append(headers,
		kafka.Header{Key: HeaderEventID, Value: []byte(strconv.FormatInt(e.ID, 10))},
		kafka.Header{Key: HeaderEventType, Value: []byte(e.Type)},
		kafka.Header{Key: HeaderAggregateType, Value: []byte(e.AggregateType)},
		kafka.Header{Key: HeaderAggregateID, Value: []byte(e.AggregateID)},
		kafka.Header{Key: HeaderContentType, Value: []byte("application/json")},
	)
	if !e.CreatedAt.IsZero() {
		headers = append(headers, kafka.Header{Key: HeaderOccurredAt, Value: []byte(e.CreatedAt.UTC().Format(time.RFC3339Nano))})
	}
	return headers
}
