package delivery

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics/internal/platform/db"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetNote(ctx context.Context, name string) (*Note, error)
	ListNotes(ctx context.Context, filter ListFilter) ([]Note, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextName(ctx context.Context) (string, error)
	InsertNote(ctx context.Context, note *Note) error
	LockNote(ctx context.Context, name string) (*Note, error)
	UpdateStatus(ctx context.Context, name string, status Status) error
	CountParcels(ctx context.Context, name string) (int, error)
	DeleteNote(ctx context.Context, name string) error
}

// Repository provides PostgreSQL backed persistence for delivery notes.
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

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const noteSelect = `
	SELECT name, coalesce(customer, ''), coalesce(customer_name, ''), posting_date, status, prepared,
	       parcel_count, created_at, updated_at
	FROM delivery_notes`

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	err := row.Scan(&n.Name, &n.Customer, &n.CustomerName, &n.PostingDate, &n.Status, &n.Prepared,
		&n.ParcelCount, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func loadItems(ctx context.Context, q queryer, name string) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, idx, item_code, coalesce(description, ''), qty, delivered_qty, uom, stock_uom,
		       conversion_factor, rate
		FROM delivery_note_items
		WHERE delivery_note = $1
		ORDER BY idx, id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Idx, &it.ItemCode, &it.Description, &it.Qty, &it.DeliveredQty,
			&it.UOM, &it.StockUOM, &it.ConversionFactor, &it.Rate); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetNote retrieves a delivery note with its items.
func (r *Repository) GetNote(ctx context.Context, name string) (*Note, error) {
	n, err := scanNote(r.pool.QueryRow(ctx, noteSelect+` WHERE name = $1`, name))
	if err != nil {
		return nil, err
	}
	if n.Items, err = loadItems(ctx, r.pool, name); err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes lists notes without items, newest first.
func (r *Repository) ListNotes(ctx context.Context, filter ListFilter) ([]Note, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, noteSelect+`
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR customer = $2)
		ORDER BY created_at DESC, name DESC
		LIMIT $3`, string(filter.Status), filter.Customer, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *txRepo) NextName(ctx context.Context) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT 'DN-' || lpad(nextval('delivery_note_seq')::text, 5, '0')`).Scan(&name)
	return name, err
}

func (r *txRepo) InsertNote(ctx context.Context, n *Note) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO delivery_notes (name, customer, customer_name, posting_date, status)
		VALUES ($1, nullif($2, ''), $3, $4, $5)
		RETURNING created_at, updated_at`,
		n.Name, n.Customer, n.CustomerName, n.PostingDate, n.Status,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range n.Items {
		it := &n.Items[i]
		it.Idx = i + 1
		err := r.tx.QueryRow(ctx, `
			INSERT INTO delivery_note_items
				(delivery_note, idx, item_code, description, qty, delivered_qty, uom, stock_uom, conversion_factor, rate)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9)
			RETURNING id`,
			n.Name, it.Idx, it.ItemCode, it.Description, it.Qty, it.UOM, it.StockUOM, it.ConversionFactor, it.Rate,
		).Scan(&it.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) LockNote(ctx context.Context, name string) (*Note, error) {
	n, err := scanNote(r.tx.QueryRow(ctx, noteSelect+` WHERE name = $1 FOR UPDATE`, name))
	if err != nil {
		return nil, err
	}
	if n.Items, err = loadItems(ctx, r.tx, name); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, name string, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE delivery_notes SET status = $2, updated_at = now() WHERE name = $1`, name, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) CountParcels(ctx context.Context, name string) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT count(*) FROM parcels WHERE delivery_note = $1`, name).Scan(&n)
	return n, err
}

func (r *txRepo) DeleteNote(ctx context.Context, name string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM delivery_notes WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
