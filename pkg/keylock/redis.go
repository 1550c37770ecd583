package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("keylock: lock wait exceeded")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis serializes callers across processes sharing one redis. Each key is a
// SET NX PX entry holding a random token; only the holder's token deletes it.
type Redis struct {
	rdb     redis.Cmdable
	prefix  string
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
}

func NewRedis(rdb redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{
		rdb:     rdb,
		prefix:  "lock:",
		ttl:     ttl,
		wait:    5 * time.Second,
		backoff: 5 * time.Millisecond,
	}
}

func (l *Redis) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = normalize(keys)
	type held struct{ key, token string }
	acquired := make([]held, 0, len(keys))
	defer func() {
		rctx := context.WithoutCancel(ctx)
		for i := len(acquired) - 1; i >= 0; i-- {
			_ = releaseScript.Run(rctx, l.rdb, []string{acquired[i].key}, acquired[i].token).Err()
		}
	}()

	for _, k := range keys {
		key := l.prefix + k
		token := uuid.NewString()
		if err := l.acquire(ctx, key, token); err != nil {
			return err
		}
		acquired = append(acquired, held{key: key, token: token})
	}
	return fn(ctx)
}

func (l *Redis) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	delay := l.backoff
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("keylock: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if delay < 100*time.Millisecond {
			delay *= 2
		}
	}
}
