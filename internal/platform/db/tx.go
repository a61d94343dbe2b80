package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner is satisfied by *pgxpool.Pool and pgx.Tx.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, conn Beginner, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, conn, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

// WithLockingTx runs fn under ReadCommitted. Callers serialise on explicit
// row locks (SELECT ... FOR UPDATE) and must see rows committed while waiting.
func WithLockingTx(ctx context.Context, conn Beginner, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, conn, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithTxOptions executes fn in a transaction started with opts.
func WithTxOptions(ctx context.Context, conn Beginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	if conn == nil {
		return fmt.Errorf("platform/db: no connection")
	}
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
