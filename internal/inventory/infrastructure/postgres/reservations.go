package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	pg "github.com/dmehra2102/stock-reservation/internal/platform/postgres"
)

type ReservationStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewReservationStore(log *slog.Logger, pool *pgxpool.Pool) *ReservationStore {
	return &ReservationStore{log: log, pool: pool}
}

const reservationColumns = `id, product_id, owner_id, quantity, reserved_at, expires_at, status, updated_at`

func (s *ReservationStore) Create(ctx context.Context, productID, ownerID string, quantity int, reservedAt time.Time, ttl time.Duration) (domain.Reservation, error) {
	if quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	r := domain.NewReservation(productID, ownerID, quantity, reservedAt, ttl)
	_, err := pg.Conn(ctx, s.pool).Exec(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.ProductID, r.OwnerID, r.Quantity, r.ReservedAt, r.ExpiresAt, string(r.Status), r.UpdatedAt)
	if err != nil {
		return domain.Reservation{}, err
	}
	return r, nil
}

func (s *ReservationStore) SumActiveQuantity(ctx context.Context, productID string) (int, error) {
	var sum int64
	err := pg.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM reservations WHERE product_id=$1 AND status='ACTIVE'`, productID).
		Scan(&sum)
	return int(sum), err
}

func (s *ReservationStore) Transition(ctx context.Context, reservationID string, from, to domain.ReservationStatus) error {
	q := pg.Conn(ctx, s.pool)
	ct, err := q.Exec(ctx, `UPDATE reservations SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`,
		reservationID, string(from), string(to))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = q.QueryRow(ctx, `SELECT status FROM reservations WHERE id=$1`, reservationID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservationID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", domain.ErrConflict, reservationID, current)
}

func (s *ReservationStore) FindActiveExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return s.list(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE status='ACTIVE' AND expires_at < $1 ORDER BY expires_at LIMIT $2`, now, limit)
}

func (s *ReservationStore) Get(ctx context.Context, reservationID string) (domain.Reservation, error) {
	rows, err := s.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(rows) == 0 {
		return domain.Reservation{}, fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservationID)
	}
	return rows[0], nil
}

func (s *ReservationStore) ListActiveByProduct(ctx context.Context, productID string) ([]domain.Reservation, error) {
	return s.list(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE product_id=$1 AND status='ACTIVE' ORDER BY reserved_at, id`, productID)
}

func (s *ReservationStore) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Reservation, error) {
	return s.list(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE owner_id=$1 AND status='ACTIVE' ORDER BY reserved_at, id`, ownerID)
}

func (s *ReservationStore) list(ctx context.Context, sql string, args ...any) ([]domain.Reservation, error) {
	rows, err := pg.Conn(ctx, s.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Reservation, 0)
	for rows.Next() {
		var r domain.Reservation
		var status string
		if err := rows.Scan(&r.ID, &r.ProductID, &r.OwnerID, &r.Quantity, &r.ReservedAt, &r.ExpiresAt, &status, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = domain.ReservationStatus(status)
		r.ReservedAt = r.ReservedAt.UTC()
		r.ExpiresAt = r.ExpiresAt.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
