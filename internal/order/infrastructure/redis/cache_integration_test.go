//go:build integration

package redis_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	orderredis "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/redis"
	"github.com/dmehra2102/stock-reservation/test/integration"
)

func TestCacheAgainstRedis(t *testing.T) {
	env := integration.Start(t, integration.Redis)
	rdb := env.RedisClient(t)
	cache := orderredis.NewCache(slog.New(slog.NewTextHandler(io.Discard, nil)), rdb, time.Minute)
	ctx := context.Background()

	o := domain.NewOrder("u-1", []domain.OrderItem{{ProductID: "p", Quantity: 3, UnitPrice: decimal.RequireFromString("2.10")}}, time.Now())

	_, ok, err := cache.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, o))
	got, ok, err := cache.Get(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)
	assert.True(t, o.Subtotal.Equal(got.Subtotal))

	ttl, err := rdb.TTL(ctx, "order:"+o.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cache.Invalidate(ctx, o.ID))
	_, ok, err = cache.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rdb.Set(ctx, "order:broken", "{not json", time.Minute).Err())
	_, ok, err = cache.Get(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := rdb.Exists(ctx, "order:broken").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "unreadable entries are dropped")
}
