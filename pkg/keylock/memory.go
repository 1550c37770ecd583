package keylock

import (
	"context"
	"sync"
)

// Memory serializes callers within one process.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*entry)}
}

func (m *Memory) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.unlock(held[i])
		}
	}()

	for _, k := range keys {
		if err := m.lock(ctx, k); err != nil {
			return err
		}
		held = append(held, k)
	}
	return fn(ctx)
}

func (m *Memory) lock(ctx context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.drop(key, e)
		return ctx.Err()
	}
}

func (m *Memory) unlock(key string) {
	m.mu.Lock()
	e := m.locks[key]
	m.mu.Unlock()
	<-e.sem
	m.drop(key, e)
}

func (m *Memory) drop(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
