package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	pg "github.com/dmehra2102/stock-reservation/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, event outbox.Event) error {
	return pg.InTx(ctx, r.pool, func(ctx context.Context) error {
		tx := pg.Conn(ctx, r.pool)

		var tracking *string
		if o.TrackingNumber != "" {
			tracking = &o.TrackingNumber
		}
		_, err := tx.Exec(ctx, `INSERT INTO orders (id, order_number, user_id, status, payment_status,
				subtotal, shipping_cost, tax, total, tracking_number, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10,$11,$12)
			ON CONFLICT (id) DO UPDATE SET status=$4, payment_status=$5, tracking_number=$10, updated_at=$12`,
			o.ID, o.OrderNumber, o.UserID, string(o.Status), string(o.PaymentStatus),
			o.Subtotal.String(), o.ShippingCost.String(), o.Tax.String(), o.Total.String(),
			tracking, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, item := range o.Items {
			batch.Queue(`INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, reservation_id, position)
				VALUES ($1,$2,$3,$4,$5::numeric,$6,$7)
				ON CONFLICT (id) DO NOTHING`,
				item.ID, o.ID, item.ProductID, item.Quantity, item.UnitPrice.String(), item.ReservationID, i)
		}
		if err := sendBatch(ctx, tx, batch); err != nil {
			return err
		}

		return insertOutbox(ctx, tx, event)
	})
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getOne(ctx, `WHERE id=$1`, id)
}

func (r *Repository) GetByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.getOne(ctx, `WHERE order_number=$1`, orderNumber)
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := r.query(ctx, `WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Items, err = r.items(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *Repository) getOne(ctx context.Context, where string, arg string) (domain.Order, error) {
	orders, err := r.query(ctx, where, arg)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, arg)
	}
	o := orders[0]
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) query(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := pg.Conn(ctx, r.pool).Query(ctx, `SELECT id, order_number, user_id, status, payment_status,
			subtotal::text, shipping_cost::text, tax::text, total::text, COALESCE(tracking_number, ''),
			created_at, updated_at
		FROM orders `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var status, payment, subtotal, shipping, tax, total string
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.UserID, &status, &payment,
			&subtotal, &shipping, &tax, &total, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = domain.OrderStatus(status)
		o.PaymentStatus = domain.PaymentStatus(payment)
		if err := parseMoney([]string{subtotal, shipping, tax, total},
			&o.Subtotal, &o.ShippingCost, &o.Tax, &o.Total); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := pg.Conn(ctx, r.pool).Query(ctx, `SELECT id, product_id, quantity, unit_price::text, COALESCE(reservation_id, '')
		FROM order_items WHERE order_id=$1 ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		var price string
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &price, &item.ReservationID); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func parseMoney(raw []string, dst ...*decimal.Decimal) error {
	for i, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		*dst[i] = d
	}
	return nil
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func sendBatch(ctx context.Context, q pg.Querier, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	sender, ok := q.(batchSender)
	if !ok {
		return errors.New("querier cannot send batches")
	}
	return sender.SendBatch(ctx, b).Close()
}

func insertOutbox(ctx context.Context, q pg.Querier, e outbox.Event) error {
	headers := e.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := q.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		e.AggregateType, e.AggregateID, e.Type, e.Payload, headers, e.Traceparent)
	return err
}
