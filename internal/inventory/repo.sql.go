package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const entrySelect = `
	SELECT name, purpose, from_warehouse, to_warehouse, docstatus, coalesce(ref_type, ''),
	       coalesce(ref_name, ''), coalesce(remarks, ''), posted_at, created_at
	FROM stock_entries`

func loadEntry(ctx context.Context, q rowQuerier, name string, lock bool) (StockEntry, error) {
	sql := entrySelect + ` WHERE name = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var e StockEntry
	err := q.QueryRow(ctx, sql, name).Scan(&e.Name, &e.Purpose, &e.FromWarehouse, &e.ToWarehouse, &e.DocStatus,
		&e.RefType, &e.RefName, &e.Remarks, &e.PostedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockEntry{}, ErrEntryNotFound
		}
		return StockEntry{}, err
	}
	rows, err := q.Query(ctx, `
		SELECT id, idx, item_code, qty, uom, stock_uom, conversion_factor, basic_rate
		FROM stock_entry_items
		WHERE stock_entry = $1
		ORDER BY idx, id`, name)
	if err != nil {
		return StockEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it StockEntryItem
		if err := rows.Scan(&it.ID, &it.Idx, &it.ItemCode, &it.Qty, &it.UOM, &it.StockUOM,
			&it.ConversionFactor, &it.BasicRate); err != nil {
			return StockEntry{}, err
		}
		e.Items = append(e.Items, it)
	}
	return e, rows.Err()
}

// GetEntry retrieves a stock entry with its items.
func (r *Repository) GetEntry(ctx context.Context, name string) (StockEntry, error) {
	return loadEntry(ctx, r.pool, name, false)
}

// GetBalance reads the current balance of an item in a warehouse.
func (r *Repository) GetBalance(ctx context.Context, warehouse, itemCode string) (Balance, error) {
	return scanBalance(r.pool.QueryRow(ctx, `
		SELECT warehouse, item_code, qty, valuation_rate, updated_at
		FROM stock_balances
		WHERE warehouse = $1 AND item_code = $2`, warehouse, itemCode), warehouse, itemCode)
}

// Ledger lists ledger entries, oldest first.
func (r *Repository) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}
	rows, err := r.pool.Query(ctx, `
		SELECT stock_entry, movement, warehouse, item_code, qty_in, qty_out, balance_qty, valuation_rate, posted_at
		FROM stock_ledger
		WHERE warehouse = $1 AND item_code = $2
		  AND ($3::timestamptz IS NULL OR posted_at >= $3)
		  AND ($4::timestamptz IS NULL OR posted_at <= $4)
		ORDER BY posted_at, id
		LIMIT $5`, filter.Warehouse, filter.ItemCode, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]LedgerEntry, 0)
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.EntryName, &e.Movement, &e.Warehouse, &e.ItemCode, &e.QtyIn, &e.QtyOut,
			&e.BalanceQty, &e.ValuationRate, &e.PostedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepo) NextEntryName(ctx context.Context) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT 'STE-' || lpad(nextval('stock_entry_seq')::text, 5, '0')`).Scan(&name)
	return name, err
}

func (r *txRepo) InsertEntry(ctx context.Context, e *StockEntry) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_entries (name, purpose, from_warehouse, to_warehouse, docstatus, ref_type, ref_name, remarks)
		VALUES ($1, $2, $3, $4, $5, nullif($6, ''), nullif($7, ''), $8)
		RETURNING created_at`,
		e.Name, e.Purpose, e.FromWarehouse, e.ToWarehouse, e.DocStatus, e.RefType, e.RefName, e.Remarks,
	).Scan(&e.CreatedAt)
	if err != nil {
		return err
	}
	for i := range e.Items {
		it := &e.Items[i]
		err := r.tx.QueryRow(ctx, `
			INSERT INTO stock_entry_items (stock_entry, idx, item_code, qty, uom, stock_uom, conversion_factor, basic_rate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			e.Name, it.Idx, it.ItemCode, it.Qty, it.UOM, it.StockUOM, it.ConversionFactor, it.BasicRate,
		).Scan(&it.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) GetEntryForUpdate(ctx context.Context, name string) (StockEntry, error) {
	return loadEntry(ctx, r.tx, name, true)
}

func (r *txRepo) MarkSubmitted(ctx context.Context, name string, postedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_entries SET docstatus = 1, posted_at = $2 WHERE name = $1 AND docstatus = 0`, name, postedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotDraft
	}
	return nil
}

func scanBalance(row pgx.Row, warehouse, itemCode string) (Balance, error) {
	var b Balance
	err := row.Scan(&b.Warehouse, &b.ItemCode, &b.Qty, &b.ValuationRate, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{Warehouse: warehouse, ItemCode: itemCode}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, warehouse, itemCode string) (Balance, error) {
	return scanBalance(r.tx.QueryRow(ctx, `
		SELECT warehouse, item_code, qty, valuation_rate, updated_at
		FROM stock_balances
		WHERE warehouse = $1 AND item_code = $2
		FOR UPDATE`, warehouse, itemCode), warehouse, itemCode)
}

func (r *txRepo) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_balances (warehouse, item_code, qty, valuation_rate, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (warehouse, item_code)
		DO UPDATE SET qty = EXCLUDED.qty, valuation_rate = EXCLUDED.valuation_rate, updated_at = now()`,
		b.Warehouse, b.ItemCode, b.Qty, b.ValuationRate)
	return err
}

func (r *txRepo) InsertLedgerEntry(ctx context.Context, e LedgerEntry) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_ledger
			(stock_entry, movement, warehouse, item_code, qty_in, qty_out, balance_qty, valuation_rate, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.EntryName, e.Movement, e.Warehouse, e.ItemCode, e.QtyIn, e.QtyOut, e.BalanceQty, e.ValuationRate, e.PostedAt)
	return err
}
