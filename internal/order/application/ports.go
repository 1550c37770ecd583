package application

import (
	"context"

	invapp "github.com/dmehra2102/stock-reservation/internal/inventory/application"
	invdomain "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

type OrderRepository interface {
	// SaveWithOutbox inserts or updates the order and appends event to the
	// outbox in the same write.
	SaveWithOutbox(ctx context.Context, o domain.Order, event outbox.Event) error
	Get(ctx context.Context, id string) (domain.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

type Reservations interface {
	Reserve(ctx context.Context, productID, ownerID string, quantity int, opts ...invapp.ReserveOption) (invdomain.Reservation, error)
	Release(ctx context.Context, reservationID string) error
	Commit(ctx context.Context, claims []invapp.Claim) error
	Uncommit(ctx context.Context, claims []invapp.Claim) error
}

type Catalog interface {
	GetProduct(ctx context.Context, productID string) (invdomain.Product, error)
}

type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// TxRunner runs fn in a store transaction carried by ctx. Repositories and
// ledgers that read the transaction from ctx join it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderCache is a read-through side cache for order lookups by id.
type OrderCache interface {
	Get(ctx context.Context, id string) (domain.Order, bool, error)
	Put(ctx context.Context, o domain.Order) error
	Invalidate(ctx context.Context, id string) error
}

type allowAllUsers struct{}

func (allowAllUsers) Exists(context.Context, string) (bool, error) { return true, nil }

type noCache struct{}

func (noCache) Get(context.Context, string) (domain.Order, bool, error) {
	return domain.Order{}, false, nil
}
func (noCache) Put(context.Context, domain.Order) error  { return nil }
func (noCache) Invalidate(context.Context, string) error { return nil }
