package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
)

// Cache stores order snapshots by id. It is only ever a copy of the
// repository: writers invalidate, readers refill.
type Cache struct {
	log *slog.Logger
	rdb goredis.Cmdable
	ttl time.Duration
}

func NewCache(log *slog.Logger, rdb goredis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{log: log, rdb: rdb, ttl: ttl}
}

func key(id string) string { return "order:" + id }

func (c *Cache) Get(ctx context.Context, id string) (domain.Order, bool, error) {
	b, err := c.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		c.log.Warn("dropping unreadable cached order", "order_id", id, "err", err)
		_ = c.rdb.Del(ctx, key(id)).Err()
		return domain.Order{}, false, nil
	}
	return o, true, nil
}

func (c *Cache) Put(ctx context.Context, o domain.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(o.ID), b, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, key(id)).Err()
}
