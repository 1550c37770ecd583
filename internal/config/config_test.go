package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/stock-reservation/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("order-service")
	require.NoError(t, err)

	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, config.LockMemory, cfg.LockBackend)
	assert.Equal(t, 30*time.Minute, cfg.ProductHoldTTL)
	assert.Equal(t, 15*time.Minute, cfg.CheckoutHoldTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 100, cfg.SweepBatch)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.True(t, cfg.RunSweeper)
}

func TestLoadPostgresDefaultsToAdvisoryLocks(t *testing.T) {
	t.Setenv("STORE", "postgres")
	t.Setenv("KAFKA_ADDR", "k1:9092, k2:9092")
	t.Setenv("CHECKOUT_HOLD_TTL", "5m")

	cfg, err := config.Load("order-service")
	require.NoError(t, err)
	assert.Equal(t, config.LockPostgres, cfg.LockBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.CheckoutHoldTTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORE", "sqlite")
	t.Setenv("SWEEP_INTERVAL", "often")
	t.Setenv("SWEEP_BATCH", "x")

	_, err := config.Load("order-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE")
	assert.Contains(t, err.Error(), "SWEEP_INTERVAL")
	assert.Contains(t, err.Error(), "SWEEP_BATCH")
}

func TestLoadRedisLockNeedsAddress(t *testing.T) {
	t.Setenv("STORE", "postgres")
	t.Setenv("LOCK_BACKEND", "redis")

	_, err := config.Load("order-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestLoadSeedProducts(t *testing.T) {
	t.Setenv("SEED_PRODUCTS", "sku-1:19.99:10, sku-2:5:0")

	cfg, err := config.Load("order-service")
	require.NoError(t, err)
	require.Len(t, cfg.SeedProducts, 2)
	assert.Equal(t, "sku-1", cfg.SeedProducts[0].ID)
	assert.Equal(t, "19.99", cfg.SeedProducts[0].Price.String())
	assert.Equal(t, 10, cfg.SeedProducts[0].Stock)
	assert.Equal(t, 0, cfg.SeedProducts[1].Stock)
}

func TestLoadRejectsBadSeed(t *testing.T) {
	t.Setenv("SEED_PRODUCTS", "sku-1:abc:10,sku-2:5")

	_, err := config.Load("order-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price of sku-1")
	assert.Contains(t, err.Error(), `"sku-2:5" is not id:price:stock`)
}

func TestLoadOutboxRoutes(t *testing.T) {
	t.Setenv("OUTBOX_ROUTES", "OrderCancelled=order.cancellations, OrderCreated=order.created")

	cfg, err := config.Load("order-service")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"OrderCancelled": "order.cancellations",
		"OrderCreated":   "order.created",
	}, cfg.OutboxRoutes)

	t.Setenv("OUTBOX_ROUTES", "OrderCreated")
	_, err = config.Load("order-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"OrderCreated" is not eventType=topic`)
}
