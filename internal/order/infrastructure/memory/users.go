package memory

import (
	"context"
	"sync"
)

type Users struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewUsers(ids ...string) *Users {
	u := &Users{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		u.ids[id] = struct{}{}
	}
	return u
}

func (u *Users) Add(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids[id] = struct{}{}
}

func (u *Users) Exists(_ context.Context, userID string) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.ids[userID]
	return ok, nil
}
