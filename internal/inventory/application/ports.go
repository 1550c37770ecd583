package application

import (
	"context"
	"time"

	"github.com/dmehra2102/stock-reservation/internal/inventory/domain"
)

type StockLedger interface {
	GetStock(ctx context.Context, productID string) (int, error)
	Deduct(ctx context.Context, productID string, quantity int) error
	// DeductBatch applies every line or none of them.
	DeductBatch(ctx context.Context, lines []domain.Deduction) error
	// Restock credits every line back. It is the inverse of DeductBatch.
	Restock(ctx context.Context, lines []domain.Deduction) error
	SetStock(ctx context.Context, productID string, quantity int) error
}

type Catalog interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

type ReservationStore interface {
	Create(ctx context.Context, productID, ownerID string, quantity int, reservedAt time.Time, ttl time.Duration) (domain.Reservation, error)
	SumActiveQuantity(ctx context.Context, productID string) (int, error)
	// Transition moves a reservation from one status to another. It returns
	// domain.ErrConflict when the reservation is not in status from.
	Transition(ctx context.Context, reservationID string, from, to domain.ReservationStatus) error
	FindActiveExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	Get(ctx context.Context, reservationID string) (domain.Reservation, error)
	ListActiveByProduct(ctx context.Context, productID string) ([]domain.Reservation, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Reservation, error)
}

type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}
