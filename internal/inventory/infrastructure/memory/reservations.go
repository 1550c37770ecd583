package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/stock-reservation/internal/inventory/domain"
)

type ReservationStore struct {
	mu        sync.RWMutex
	byID      map[string]domain.Reservation
	byProduct map[string]map[string]struct{}
	now       func() time.Time
}

func NewReservationStore() *ReservationStore {
	return &ReservationStore{
		byID:      make(map[string]domain.Reservation),
		byProduct: make(map[string]map[string]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReservationStore) Create(_ context.Context, productID, ownerID string, quantity int, reservedAt time.Time, ttl time.Duration) (domain.Reservation, error) {
	if quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	r := domain.NewReservation(productID, ownerID, quantity, reservedAt, ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = r
	ids, ok := s.byProduct[productID]
	if !ok {
		ids = make(map[string]struct{})
		s.byProduct[productID] = ids
	}
	ids[r.ID] = struct{}{}
	return r, nil
}

func (s *ReservationStore) SumActiveQuantity(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for id := range s.byProduct[productID] {
		if r := s.byID[id]; r.Status == domain.ReservationActive {
			total += r.Quantity
		}
	}
	return total, nil
}

func (s *ReservationStore) Transition(_ context.Context, reservationID string, from, to domain.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[reservationID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservationID)
	}
	if r.Status != from {
		return fmt.Errorf("%w: %s is %s", domain.ErrConflict, reservationID, r.Status)
	}
	r.Status = to
	r.UpdatedAt = s.now()
	s.byID[reservationID] = r
	return nil
}

func (s *ReservationStore) FindActiveExpired(_ context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.RLock()
	out := make([]domain.Reservation, 0)
	for _, r := range s.byID {
		if r.Stale(now) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ReservationStore) Get(_ context.Context, reservationID string) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[reservationID]
	if !ok {
		return domain.Reservation{}, fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservationID)
	}
	return r, nil
}

func (s *ReservationStore) ListActiveByProduct(_ context.Context, productID string) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Reservation, 0)
	for id := range s.byProduct[productID] {
		if r := s.byID[id]; r.Status == domain.ReservationActive {
			out = append(out, r)
		}
	}
	sortByReservedAt(out)
	return out, nil
}

func (s *ReservationStore) ListActiveByOwner(_ context.Context, ownerID string) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Reservation, 0)
	for _, r := range s.byID {
		if r.OwnerID == ownerID && r.Status == domain.ReservationActive {
			out = append(out, r)
		}
	}
	sortByReservedAt(out)
	return out, nil
}

func sortByReservedAt(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].ReservedAt.Equal(rs[j].ReservedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].ReservedAt.Before(rs[j].ReservedAt)
	})
}
