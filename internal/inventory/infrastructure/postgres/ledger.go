package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	pg "github.com/dmehra2102/stock-reservation/internal/platform/postgres"
)

// Ledger is the products table: catalog reads and stock mutations.
type Ledger struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewLedger(log *slog.Logger, pool *pgxpool.Pool) *Ledger {
	return &Ledger{log: log, pool: pool}
}

func (l *Ledger) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	var p domain.Product
	var price string
	err := pg.Conn(ctx, l.pool).QueryRow(ctx,
		`SELECT id, name, price::text, stock_quantity FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.Name, &price, &p.StockQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if err != nil {
		return domain.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Product{}, fmt.Errorf("product %s price: %w", productID, err)
	}
	return p, nil
}

// Upsert inserts or replaces a product row.
func (l *Ledger) Upsert(ctx context.Context, p domain.Product) error {
	_, err := pg.Conn(ctx, l.pool).Exec(ctx, `INSERT INTO products (id, name, price, stock_quantity)
		VALUES ($1,$2,$3::numeric,$4)
		ON CONFLICT (id) DO UPDATE SET name=$2, price=$3::numeric, stock_quantity=$4`,
		p.ID, p.Name, p.Price.String(), p.StockQuantity)
	return err
}

func (l *Ledger) GetStock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := pg.Conn(ctx, l.pool).QueryRow(ctx, `SELECT stock_quantity FROM products WHERE id=$1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return stock, err
}

func (l *Ledger) Deduct(ctx context.Context, productID string, quantity int) error {
	return l.DeductBatch(ctx, []domain.Deduction{{ProductID: productID, Quantity: quantity}})
}

func (l *Ledger) DeductBatch(ctx context.Context, lines []domain.Deduction) error {
	want := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		want[line.ProductID] += line.Quantity
	}
	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return pg.InTx(ctx, l.pool, func(ctx context.Context) error {
		q := pg.Conn(ctx, l.pool)
		for _, id := range ids {
			ct, err := q.Exec(ctx,
				`UPDATE products SET stock_quantity = stock_quantity - $2 WHERE id=$1 AND stock_quantity >= $2`,
				id, want[id])
			if err != nil {
				return err
			}
			if ct.RowsAffected() == 1 {
				continue
			}
			stock, err := l.GetStock(ctx, id)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: product %s has %d in stock, %d requested", domain.ErrInsufficientStock, id, stock, want[id])
		}
		return nil
	})
}

func (l *Ledger) Restock(ctx context.Context, lines []domain.Deduction) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
	}
	sorted := append([]domain.Deduction(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	return pg.InTx(ctx, l.pool, func(ctx context.Context) error {
		q := pg.Conn(ctx, l.pool)
		for _, line := range sorted {
			ct, err := q.Exec(ctx, `UPDATE products SET stock_quantity = stock_quantity + $2 WHERE id=$1`, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if ct.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
			}
		}
		return nil
	})
}

func (l *Ledger) SetStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	ct, err := pg.Conn(ctx, l.pool).Exec(ctx, `UPDATE products SET stock_quantity=$2 WHERE id=$1`, productID, quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return nil
}
