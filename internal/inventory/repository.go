package inventory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	NextEntryName(ctx context.Context) (string, error)
	InsertEntry(ctx context.Context, entry *StockEntry) error
	GetEntryForUpdate(ctx context.Context, name string) (StockEntry, error)
	MarkSubmitted(ctx context.Context, name string, postedAt time.Time) error
	GetBalanceForUpdate(ctx context.Context, warehouse, itemCode string) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}
