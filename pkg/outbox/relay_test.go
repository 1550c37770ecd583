package outbox_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

type recordingProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail bool
}

func (p *recordingProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingProducer) sent() []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Message(nil), p.msgs...)
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelayOnceDispatchesAndMarksSent(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := outbox.NewMemoryStore()
	producer := &recordingProducer{}
	relay := outbox.NewRelay(log, store, outbox.NewDispatcher(log, producer, "order.events"), "test-relay")

	_, err := store.Append(ctx, outbox.Event{
		AggregateType: "order",
		AggregateID:   "o-1",
		Type:          "OrderCreated",
		Payload:       []byte(`{"order_id":"o-1"}`),
		Headers:       map[string]string{"source": "order-service"},
		Traceparent:   "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	})
	require.NoError(t, err)

	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := producer.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "order.events", msgs[0].Topic)
	assert.Equal(t, "o-1", string(msgs[0].Key))
	assert.Equal(t, "OrderCreated", header(msgs[0], "event_type"))
	assert.Equal(t, "order-service", header(msgs[0], "source"))
	assert.NotEmpty(t, header(msgs[0], "traceparent"))

	assert.Equal(t, outbox.StatusSent, store.Events()[0].Status)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayOnceRetriesThenParksFailures(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := outbox.NewMemoryStore()
	producer := &recordingProducer{fail: true}
	relay := outbox.NewRelay(log, store, outbox.NewDispatcher(log, producer, "t"), "r")

	_, err := store.Append(ctx, outbox.Event{AggregateID: "o", Type: "OrderCreated", Payload: []byte(`{}`)})
	require.NoError(t, err)

	for i := 0; i < outbox.MaxRetries; i++ {
		_, err := relay.RelayOnce(ctx)
		require.NoError(t, err)
	}
	ev := store.Events()[0]
	assert.Equal(t, outbox.StatusFailed, ev.Status)
	assert.Equal(t, outbox.MaxRetries, ev.RetryCount)
	require.NotNil(t, ev.LastError)
	assert.Contains(t, *ev.LastError, "broker unavailable")
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := outbox.NewMemoryStore()
	producer := &recordingProducer{}
	relay := outbox.NewRelay(log, store, outbox.NewDispatcher(log, producer, "t"), "r", outbox.WithInterval(5*time.Millisecond))
	_, err := store.Append(context.Background(), outbox.Event{AggregateID: "o", Type: "OrderCancelled", Payload: []byte(`{}`)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return len(producer.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
