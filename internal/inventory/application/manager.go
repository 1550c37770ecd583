package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dmehra2102/stock-reservation/internal/inventory/domain"
)

const (
	ProductHoldTTL  = 30 * time.Minute
	CheckoutHoldTTL = 15 * time.Minute
)

func ProductKey(productID string) string { return "product:" + productID }

// Claim is one order line being turned into a real stock deduction. ReservationID
// may be empty when the line has no hold behind it.
type Claim struct {
	ProductID     string
	Quantity      int
	ReservationID string
}

type Manager struct {
	log    *slog.Logger
	ledger StockLedger
	store  ReservationStore
	locker Locker
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

func NewManager(log *slog.Logger, ledger StockLedger, store ReservationStore, locker Locker, opts ...Option) *Manager {
	m := &Manager{
		log:    log,
		ledger: ledger,
		store:  store,
		locker: locker,
		ttl:    ProductHoldTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type reserveOptions struct {
	ttl time.Duration
}

type ReserveOption func(*reserveOptions)

func WithTTL(ttl time.Duration) ReserveOption {
	return func(o *reserveOptions) { o.ttl = ttl }
}

func (m *Manager) Now() time.Time { return m.now() }

func (m *Manager) Reserve(ctx context.Context, productID, ownerID string, quantity int, opts ...ReserveOption) (domain.Reservation, error) {
	if quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	o := reserveOptions{ttl: m.ttl}
	for _, opt := range opts {
		opt(&o)
	}

	var res domain.Reservation
	err := m.locker.WithLock(ctx, []string{ProductKey(productID)}, func(ctx context.Context) error {
		now := m.now()
		if err := m.expireStale(ctx, productID, now); err != nil {
			return err
		}
		available, err := m.available(ctx, productID)
		if err != nil {
			return err
		}
		if available < quantity {
			return fmt.Errorf("%w: product %s has %d available, %d requested", domain.ErrInsufficientStock, productID, available, quantity)
		}
		res, err = m.store.Create(ctx, productID, ownerID, quantity, now, o.ttl)
		return err
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	m.log.Info("stock reserved", "reservation_id", res.ID, "product_id", productID, "owner_id", ownerID, "quantity", quantity, "expires_at", res.ExpiresAt)
	return res, nil
}

func (m *Manager) Release(ctx context.Context, reservationID string) error {
	return m.transition(ctx, reservationID, domain.ReservationReleased)
}

func (m *Manager) Consume(ctx context.Context, reservationID string) error {
	return m.transition(ctx, reservationID, domain.ReservationConfirmed)
}

// ExpireIfStale expires the reservation only if it is still ACTIVE past its
// expiry at now. It reports whether this call did the expiring.
func (m *Manager) ExpireIfStale(ctx context.Context, reservationID string, now time.Time) (bool, error) {
	r, err := m.store.Get(ctx, reservationID)
	if err != nil {
		return false, err
	}
	if !r.Stale(now) {
		return false, nil
	}
	err = m.store.Transition(ctx, reservationID, domain.ReservationActive, domain.ReservationExpired)
	if errors.Is(err, domain.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.log.Info("reservation expired", "reservation_id", reservationID, "product_id", r.ProductID, "quantity", r.Quantity)
	return true, nil
}

// Commit turns claims into stock deductions in one unit: availability is
// re-checked for every product with each claim's own hold credited back, the
// holds are consumed, and stock is deducted. Nothing is applied if any line fails.
func (m *Manager) Commit(ctx context.Context, claims []Claim) error {
	if len(claims) == 0 {
		return nil
	}
	keys := make([]string, 0, len(claims))
	for _, c := range claims {
		if c.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		keys = append(keys, ProductKey(c.ProductID))
	}

	return m.locker.WithLock(ctx, keys, func(ctx context.Context) error {
		need := make(map[string]int)
		credit := make(map[string]int)
		for _, c := range claims {
			need[c.ProductID] += c.Quantity
			if c.ReservationID == "" {
				continue
			}
			r, err := m.store.Get(ctx, c.ReservationID)
			if errors.Is(err, domain.ErrReservationNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if r.Status == domain.ReservationActive && r.ProductID == c.ProductID {
				credit[c.ProductID] += r.Quantity
			}
		}

		products := make([]string, 0, len(need))
		for p := range need {
			products = append(products, p)
		}
		sort.Strings(products)

		lines := make([]domain.Deduction, 0, len(products))
		for _, p := range products {
			available, err := m.available(ctx, p)
			if err != nil {
				return err
			}
			if available+credit[p] < need[p] {
				return fmt.Errorf("%w: product %s has %d available, %d requested", domain.ErrInsufficientStock, p, available+credit[p], need[p])
			}
			lines = append(lines, domain.Deduction{ProductID: p, Quantity: need[p]})
		}

		// Holds are consumed before stock drops so stock - ΣACTIVE never dips
		// below zero for unlocked readers.
		consumed, err := m.consumeClaims(ctx, claims)
		if err != nil {
			m.reactivate(ctx, consumed)
			return err
		}
		if err := m.ledger.DeductBatch(ctx, lines); err != nil {
			m.reactivate(ctx, consumed)
			return err
		}
		m.log.Info("stock committed", "lines", len(lines))
		return nil
	})
}

// Uncommit reverses a Commit whose caller could not record the outcome: stock
// is credited back and the consumed holds return to ACTIVE. Availability is
// unchanged by the pair so no re-check is needed.
func (m *Manager) Uncommit(ctx context.Context, claims []Claim) error {
	if len(claims) == 0 {
		return nil
	}
	keys := make([]string, 0, len(claims))
	lines := make([]domain.Deduction, 0, len(claims))
	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		keys = append(keys, ProductKey(c.ProductID))
		lines = append(lines, domain.Deduction{ProductID: c.ProductID, Quantity: c.Quantity})
		if c.ReservationID != "" {
			ids = append(ids, c.ReservationID)
		}
	}

	return m.locker.WithLock(ctx, keys, func(ctx context.Context) error {
		if err := m.ledger.Restock(ctx, lines); err != nil {
			return err
		}
		m.reactivate(ctx, ids)
		m.log.Warn("stock commit reverted", "lines", len(lines))
		return nil
	})
}

func (m *Manager) Available(ctx context.Context, productID string) (int, error) {
	return m.available(ctx, productID)
}

// SetStock replaces the stock count. A value below the quantity currently held
// by ACTIVE reservations is rejected.
func (m *Manager) SetStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	return m.locker.WithLock(ctx, []string{ProductKey(productID)}, func(ctx context.Context) error {
		if _, err := m.ledger.GetStock(ctx, productID); err != nil {
			return err
		}
		held, err := m.store.SumActiveQuantity(ctx, productID)
		if err != nil {
			return err
		}
		if quantity < held {
			return fmt.Errorf("%w: product %s has %d held by active reservations", domain.ErrInsufficientStock, productID, held)
		}
		if err := m.ledger.SetStock(ctx, productID, quantity); err != nil {
			return err
		}
		m.log.Info("stock set", "product_id", productID, "quantity", quantity)
		return nil
	})
}

func (m *Manager) Get(ctx context.Context, reservationID string) (domain.Reservation, error) {
	return m.store.Get(ctx, reservationID)
}

func (m *Manager) ListActiveByProduct(ctx context.Context, productID string) ([]domain.Reservation, error) {
	return m.store.ListActiveByProduct(ctx, productID)
}

func (m *Manager) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Reservation, error) {
	return m.store.ListActiveByOwner(ctx, ownerID)
}

func (m *Manager) available(ctx context.Context, productID string) (int, error) {
	stock, err := m.ledger.GetStock(ctx, productID)
	if err != nil {
		return 0, err
	}
	held, err := m.store.SumActiveQuantity(ctx, productID)
	if err != nil {
		return 0, err
	}
	return stock - held, nil
}

func (m *Manager) expireStale(ctx context.Context, productID string, now time.Time) error {
	active, err := m.store.ListActiveByProduct(ctx, productID)
	if err != nil {
		return err
	}
	for _, r := range active {
		if !r.Stale(now) {
			continue
		}
		err := m.store.Transition(ctx, r.ID, domain.ReservationActive, domain.ReservationExpired)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if err == nil {
			m.log.Info("reservation expired", "reservation_id", r.ID, "product_id", productID, "quantity", r.Quantity)
		}
	}
	return nil
}

func (m *Manager) transition(ctx context.Context, reservationID string, to domain.ReservationStatus) error {
	err := m.store.Transition(ctx, reservationID, domain.ReservationActive, to)
	if errors.Is(err, domain.ErrConflict) {
		m.log.Debug("reservation already settled", "reservation_id", reservationID, "target", to)
		return nil
	}
	if err != nil {
		return err
	}
	m.log.Info("reservation settled", "reservation_id", reservationID, "status", to)
	return nil
}

// consumeClaims confirms every ACTIVE hold behind claims and returns the ids
// this call moved.
func (m *Manager) consumeClaims(ctx context.Context, claims []Claim) ([]string, error) {
	var consumed []string
	for _, c := range claims {
		if c.ReservationID == "" {
			continue
		}
		r, err := m.store.Get(ctx, c.ReservationID)
		if errors.Is(err, domain.ErrReservationNotFound) {
			continue
		}
		if err != nil {
			return consumed, err
		}
		if r.Status != domain.ReservationActive {
			continue
		}
		if err := m.Consume(ctx, c.ReservationID); err != nil {
			return consumed, err
		}
		consumed = append(consumed, c.ReservationID)
	}
	return consumed, nil
}

// reactivate puts confirmed holds back to ACTIVE. Failures are logged; a hold
// left CONFIRMED only understates availability.
func (m *Manager) reactivate(ctx context.Context, ids []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		err := m.store.Transition(ctx, id, domain.ReservationConfirmed, domain.ReservationActive)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			m.log.Error("reactivate reservation failed", "reservation_id", id, "err", err)
		}
	}
}
