package outbox

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps outbox events in process. It backs the in-memory order
// repository so the relay and dispatcher run the same way without postgres.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	events []*memoryEvent
}

type memoryEvent struct {
	Event
	leaseUntil time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	e.Status = StatusPending
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, &memoryEvent{Event: e})
	return e.ID, nil
}

// Events returns a snapshot of every event in insertion order.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Event)
	}
	return out
}

func (s *MemoryStore) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]Event, 0)
	for _, e := range s.events {
		if len(out) >= batchSize {
			break
		}
		claimable := e.Status == StatusPending || (e.Status == StatusInProgress && now.After(e.leaseUntil))
		if !claimable {
			continue
		}
		e.Status = StatusInProgress
		e.RelayID = relayID
		e.leaseUntil = now.Add(lease)
		out = append(out, e.Event)
	}
	return out, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if contains(ids, e.ID) {
			e.Status = StatusSent
		}
	}
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID != id {
			continue
		}
		e.RetryCount++
		msg := errMsg
		e.LastError = &msg
		e.Status = StatusPending
		if e.RetryCount >= MaxRetries {
			e.Status = StatusFailed
		}
	}
	return nil
}

func (s *MemoryStore) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := time.Now().Add(lease)
	for _, e := range s.events {
		if e.RelayID == relayID && contains(ids, e.ID) {
			e.leaseUntil = until
		}
	}
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
