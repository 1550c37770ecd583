package postgres

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TxLocker runs fn in a transaction holding a transaction-scoped advisory lock
// per key. Repositories called from fn share that transaction through ctx, so
// everything fn reads and writes commits or rolls back together.
type TxLocker struct {
	pool *pgxpool.Pool
}

func NewTxLocker(pool *pgxpool.Pool) *TxLocker {
	return &TxLocker{pool: pool}
}

func (l *TxLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	return InTx(ctx, l.pool, func(ctx context.Context) error {
		q := Conn(ctx, l.pool)
		for i, k := range sorted {
			if i > 0 && sorted[i-1] == k {
				continue
			}
			if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
				return err
			}
		}
		return fn(ctx)
	})
}
