package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/infrastructure/memory"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

func TestRepositorySaveAndQuery(t *testing.T) {
	ctx := context.Background()
	store := outbox.NewMemoryStore()
	repo := memory.NewRepository(store)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := domain.NewOrder("u1", []domain.OrderItem{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(3)}}, base)
	second := domain.NewOrder("u1", []domain.OrderItem{{ProductID: "p", Quantity: 2, UnitPrice: decimal.NewFromInt(3)}}, base.Add(time.Hour))

	require.NoError(t, repo.SaveWithOutbox(ctx, first, outbox.Event{AggregateID: first.ID, Type: domain.EventOrderCreated}))
	require.NoError(t, repo.SaveWithOutbox(ctx, second, outbox.Event{AggregateID: second.ID, Type: domain.EventOrderCreated}))

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.OrderNumber, got.OrderNumber)

	got, err = repo.GetByNumber(ctx, second.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Len(t, store.Events(), 2)
}

func TestRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(outbox.NewMemoryStore())
	o := domain.NewOrder("u", []domain.OrderItem{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}, time.Now())
	require.NoError(t, repo.SaveWithOutbox(ctx, o, outbox.Event{}))

	got, _ := repo.Get(ctx, o.ID)
	got.Items[0].Quantity = 99
	again, _ := repo.Get(ctx, o.ID)
	assert.Equal(t, 1, again.Items[0].Quantity)
}
