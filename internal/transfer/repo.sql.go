package transfer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for transfer batches.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction; batch and note rows are
// locked explicitly.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadBatch(ctx context.Context, q rowQuerier, name string, lock bool) (Batch, error) {
	sql := `
		SELECT name, from_warehouse, to_warehouse, docstatus, coalesce(stock_entry, ''),
		       coalesce(return_entry, ''), created_at, updated_at
		FROM transfer_batches
		WHERE name = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var b Batch
	err := q.QueryRow(ctx, sql, name).Scan(&b.Name, &b.FromWarehouse, &b.ToWarehouse, &b.DocStatus,
		&b.StockEntry, &b.ReturnEntry, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	rows, err := q.Query(ctx, `SELECT delivery_note FROM transfer_batch_notes WHERE batch = $1 ORDER BY idx`, name)
	if err != nil {
		return Batch{}, err
	}
	defer rows.Close()
	b.DeliveryNotes = make([]string, 0)
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return Batch{}, err
		}
		b.DeliveryNotes = append(b.DeliveryNotes, note)
	}
	return b, rows.Err()
}

func noteStates(ctx context.Context, q rowQuerier, notes []string, lock bool) (map[string]NoteState, error) {
	sql := `SELECT name, status, prepared FROM delivery_notes WHERE name = ANY($1) ORDER BY name`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, notes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]NoteState, len(notes))
	for rows.Next() {
		var s NoteState
		if err := rows.Scan(&s.Name, &s.Status, &s.Prepared); err != nil {
			return nil, err
		}
		out[s.Name] = s
	}
	return out, rows.Err()
}

// GetBatch retrieves a batch with its delivery notes.
func (r *Repository) GetBatch(ctx context.Context, name string) (Batch, error) {
	return loadBatch(ctx, r.pool, name, false)
}

// NoteStates reads the status and prepared flag of notes.
func (r *Repository) NoteStates(ctx context.Context, notes []string) (map[string]NoteState, error) {
	return noteStates(ctx, r.pool, notes, false)
}

// NoteItems lists the rows of notes in batch order.
func (r *Repository) NoteItems(ctx context.Context, notes []string) ([]NoteItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.delivery_note, i.item_code, i.qty, i.uom, i.stock_uom, i.conversion_factor, i.rate
		FROM delivery_note_items i
		JOIN unnest($1::text[]) WITH ORDINALITY AS n(name, ord) ON n.name = i.delivery_note
		ORDER BY n.ord, i.idx, i.id`, notes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []NoteItem
	for rows.Next() {
		var it NoteItem
		if err := rows.Scan(&it.DeliveryNote, &it.ItemCode, &it.Qty, &it.UOM, &it.StockUOM,
			&it.ConversionFactor, &it.Rate); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *txRepo) NextName(ctx context.Context) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT 'TB-' || lpad(nextval('transfer_batch_seq')::text, 5, '0')`).Scan(&name)
	return name, err
}

func (r *txRepo) InsertBatch(ctx context.Context, b *Batch) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO transfer_batches (name, from_warehouse, to_warehouse, docstatus)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		b.Name, b.FromWarehouse, b.ToWarehouse, b.DocStatus,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return err
	}
	return r.insertNotes(ctx, b)
}

func (r *txRepo) insertNotes(ctx context.Context, b *Batch) error {
	for i, note := range b.DeliveryNotes {
		_, err := r.tx.Exec(ctx, `INSERT INTO transfer_batch_notes (batch, idx, delivery_note) VALUES ($1, $2, $3)`,
			b.Name, i+1, note)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) UpdateBatch(ctx context.Context, b *Batch) error {
	err := r.tx.QueryRow(ctx, `
		UPDATE transfer_batches SET from_warehouse = $2, to_warehouse = $3, updated_at = now()
		WHERE name = $1
		RETURNING updated_at`,
		b.Name, b.FromWarehouse, b.ToWarehouse,
	).Scan(&b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM transfer_batch_notes WHERE batch = $1`, b.Name); err != nil {
		return err
	}
	return r.insertNotes(ctx, b)
}

func (r *txRepo) GetBatchForUpdate(ctx context.Context, name string) (Batch, error) {
	return loadBatch(ctx, r.tx, name, true)
}

func (r *txRepo) ActiveBatchFor(ctx context.Context, note, exclude string) (string, error) {
	var batch string
	err := r.tx.QueryRow(ctx, `
		SELECT b.name
		FROM transfer_batch_notes n
		JOIN transfer_batches b ON b.name = n.batch
		WHERE n.delivery_note = $1 AND b.name <> $2 AND b.docstatus < 2
		ORDER BY b.created_at
		LIMIT 1`, note, exclude).Scan(&batch)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return batch, err
}

func (r *txRepo) NoteStates(ctx context.Context, notes []string) (map[string]NoteState, error) {
	return noteStates(ctx, r.tx, notes, true)
}

func (r *txRepo) SetPrepared(ctx context.Context, notes []string, prepared bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE delivery_notes SET prepared = $2, updated_at = now() WHERE name = ANY($1)`, notes, prepared)
	return err
}

func (r *txRepo) SetDocStatus(ctx context.Context, name string, status DocStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfer_batches SET docstatus = $2, updated_at = now() WHERE name = $1`, name, status)
	return err
}

func (r *txRepo) SetStockEntry(ctx context.Context, name, entry string) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfer_batches SET stock_entry = $2, updated_at = now() WHERE name = $1`, name, entry)
	return err
}

func (r *txRepo) SetReturnEntry(ctx context.Context, name, entry string) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfer_batches SET return_entry = $2, updated_at = now() WHERE name = $1`, name, entry)
	return err
}
