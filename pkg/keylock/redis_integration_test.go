//go:build integration

package keylock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/stock-reservation/pkg/keylock"
	"github.com/dmehra2102/stock-reservation/test/integration"
)

func TestRedisLockExcludesAcrossClients(t *testing.T) {
	env := integration.Start(t, integration.Redis)

	// two lockers on separate connections stand in for two service replicas
	a := keylock.NewRedis(env.RedisClient(t), 10*time.Second)
	b := keylock.NewRedis(env.RedisClient(t), 10*time.Second)

	var inside, overlap int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		l := a
		if i%2 == 1 {
			l = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), []string{"product:hot", "product:cold"}, func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, overlap)

	keys, err := env.RedisClient(t).Keys(context.Background(), "lock:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys, "every lock released")
}

func TestRedisLockHonorsContext(t *testing.T) {
	env := integration.Start(t, integration.Redis)
	l := keylock.NewRedis(env.RedisClient(t), 10*time.Second)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), []string{"order:1"}, func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, []string{"order:1"}, func(ctx context.Context) error { return nil })
	require.Error(t, err)
}
