package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

type PaymentHandler interface {
	HandlePaymentResult(ctx context.Context, orderID string, approved bool, reason string) (domain.Order, error)
}

type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	retryBase = 200 * time.Millisecond
	retryMax  = 10 * time.Second
)

type Consumer struct {
	log       *slog.Logger
	reader    messageReader
	svc       PaymentHandler
	idem      Deduper
	tracer    trace.Tracer
	retryBase time.Duration
	retryMax  time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc PaymentHandler, idem Deduper) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:       log,
		reader:    r,
		svc:       svc,
		idem:      idem,
		tracer:    otel.Tracer("order-payment-consumer"),
		retryBase: retryBase,
		retryMax:  retryMax,
	}
}

// Run consumes until ctx is done. A message is committed only once it has
// been handled; a failing one is retried in place so later offsets never
// commit past it.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !c.handleWithRetry(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// handleWithRetry reports false when ctx ended before msg was handled.
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) bool {
	wait := c.retryBase
	for attempt := 1; ; attempt++ {
		err := c.Handle(ctx, msg)
		if err == nil {
			return true
		}
		c.log.Error("payment event failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "attempt", attempt, "retry_in", wait, "err", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		wait = min(wait*2, c.retryMax)
	}
}

// Handle applies one payment event. Malformed and unknown events are logged
// and dropped; only lifecycle failures that may succeed on retry are returned.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	eventType := headerValue(msg.Headers, "event_type")
	msgCtx, span := c.tracer.Start(msgCtx, "Consume"+eventType)
	defer span.End()

	var orderID, reason string
	var approved bool
	switch eventType {
	case domain.EventPaymentProcessed:
		var ev domain.PaymentProcessedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal failed", "type", eventType, "err", err)
			return nil
		}
		orderID, approved = ev.OrderID, true
	case domain.EventPaymentFailed:
		var ev domain.PaymentFailedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal failed", "type", eventType, "err", err)
			return nil
		}
		orderID, reason = ev.OrderID, ev.Reason
	default:
		c.log.Debug("ignoring event", "type", eventType)
		return nil
	}

	_, err = c.svc.HandlePaymentResult(msgCtx, orderID, approved, reason)
	var statusErr *domain.StatusError
	switch {
	case err == nil:
		c.log.Info("payment outcome applied", "order_id", orderID, "approved", approved)
		return nil
	case errors.As(err, &statusErr), errors.Is(err, domain.ErrOrderNotFound):
		c.log.Warn("payment outcome rejected", "order_id", orderID, "approved", approved, "err", err)
		return nil
	default:
		if ferr := c.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			c.log.Error("idempotency forget failed", "key", key, "err", ferr)
		}
		return err
	}
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
