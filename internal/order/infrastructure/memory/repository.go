package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

// Repository keeps orders in process and appends their events to an
// outbox.MemoryStore under the same lock.
type Repository struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	byNumber map[string]string
	outbox   *outbox.MemoryStore
}

func NewRepository(store *outbox.MemoryStore) *Repository {
	return &Repository{
		orders:   make(map[string]domain.Order),
		byNumber: make(map[string]string),
		outbox:   store,
	}
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, event outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byNumber[o.OrderNumber]; ok && id != o.ID {
		return fmt.Errorf("order number %s already used", o.OrderNumber)
	}
	if _, err := r.outbox.Append(ctx, event); err != nil {
		return err
	}
	r.orders[o.ID] = clone(o)
	r.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return clone(o), nil
}

func (r *Repository) GetByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	r.mu.RLock()
	id, ok := r.byNumber[orderNumber]
	r.mu.RUnlock()
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderNumber)
	}
	return r.Get(ctx, id)
}

func (r *Repository) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func clone(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}
