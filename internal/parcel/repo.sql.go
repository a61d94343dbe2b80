package parcel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/db"
	"github.com/odyssey-erp/logistics/internal/platform/httpx"
)

// Repository persists parcels in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction; parcel writers serialise on
// the delivery note row lock.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const noteColumns = `name, coalesce(customer, ''), coalesce(customer_name, ''), parcel_count`

// GetNote loads a delivery note with its items.
func (r *Repository) GetNote(ctx context.Context, name string) (Note, error) {
	return loadNote(ctx, r.pool, `SELECT `+noteColumns+` FROM delivery_notes WHERE name = $1`, name)
}

// Allocations sums packed quantities per item over non-cancelled parcels.
func (r *Repository) Allocations(ctx context.Context, note, excludeParcel string) (map[string]decimal.Decimal, error) {
	return allocations(ctx, r.pool, note, excludeParcel)
}

// ListParcels returns parcel summaries in creation order.
func (r *Repository) ListParcels(ctx context.Context, note string) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, status, date, coalesce(sequence, '')
		FROM parcels
		WHERE delivery_note = $1
		ORDER BY created_at, name`, note)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Name, &s.Status, &s.Date, &s.Sequence); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetParcel loads a parcel with its lines.
func (r *Repository) GetParcel(ctx context.Context, name string) (Parcel, error) {
	return loadParcel(ctx, r.pool, name, false)
}

// StoredParcelCount reads delivery_notes.parcel_count.
func (r *Repository) StoredParcelCount(ctx context.Context, note string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT parcel_count FROM delivery_notes WHERE name = $1`, note).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoteNotFound
	}
	return count, err
}

// NotesWithParcels lists delivery notes that own at least one parcel.
func (r *Repository) NotesWithParcels(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT delivery_note FROM parcels ORDER BY delivery_note`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ListAttachments returns parcel attachments whose file name starts with filePrefix.
func (r *Repository) ListAttachments(ctx context.Context, parcel, filePrefix string) ([]Attachment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, attached_to_name, file_name, object_key, content_type, size, meta, created_at
		FROM attachments
		WHERE attached_to_type = 'parcel' AND attached_to_name = $1 AND file_name LIKE $2 || '%'
		ORDER BY created_at`, parcel, filePrefix)
	if err != nil {
		return nil, err
	}
	return scanAttachments(rows)
}

// InsertAttachment stores attachment metadata.
func (r *Repository) InsertAttachment(ctx context.Context, att Attachment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attachments (id, attached_to_type, attached_to_name, file_name, object_key, content_type, size, meta, created_at)
		VALUES ($1, 'parcel', $2, $3, $4, $5, $6, $7, $8)`,
		att.ID, att.Parcel, att.FileName, att.ObjectKey, att.ContentType, att.Size, att.Meta, att.CreatedAt)
	return err
}

// DeleteAttachment removes one attachment row.
func (r *Repository) DeleteAttachment(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	return err
}

// SetImage points the parcel image at an object key.
func (r *Repository) SetImage(ctx context.Context, parcel, image string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE parcels SET image = $2, updated_at = now() WHERE name = $1`, parcel, image)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) LockNote(ctx context.Context, name string) (Note, error) {
	return loadNote(ctx, r.tx, `SELECT `+noteColumns+` FROM delivery_notes WHERE name = $1 FOR UPDATE`, name)
}

func (r *txRepo) Allocations(ctx context.Context, note, excludeParcel string) (map[string]decimal.Decimal, error) {
	return allocations(ctx, r.tx, note, excludeParcel)
}

func (r *txRepo) NextParcelName(ctx context.Context) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT 'COL-' || lpad(nextval('parcel_name_seq')::text, 6, '0')`).Scan(&name)
	return name, err
}

func (r *txRepo) InsertParcel(ctx context.Context, p *Parcel) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO parcels (name, delivery_note, client, date, status, sequence, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.Name, p.DeliveryNote, p.Client, p.Date, p.Status, p.Sequence, p.Image,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("parcel %s: %w", p.Name, httpx.ErrDuplicate)
		}
		return err
	}
	for i := range p.Lines {
		if err := r.insertLine(ctx, p.Name, i+1, &p.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) insertLine(ctx context.Context, parcel string, idx int, l *Line) error {
	l.Idx = idx
	return r.tx.QueryRow(ctx, `
		INSERT INTO parcel_lines (parcel, idx, item_code, description, total_qty, delivered_qty, remaining_qty, status, last_delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		parcel, idx, l.ItemCode, l.Description, l.TotalQty, l.DeliveredQty, l.RemainingQty, l.Status, l.LastDeliveredAt,
	).Scan(&l.ID)
}

func (r *txRepo) GetParcelForUpdate(ctx context.Context, name string) (Parcel, error) {
	return loadParcel(ctx, r.tx, name, true)
}

// UpdateParcel writes the header and reconciles lines: rows missing from p
// are deleted, known IDs updated and new lines inserted.
func (r *txRepo) UpdateParcel(ctx context.Context, p *Parcel) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE parcels SET client = $2, date = $3, status = $4, sequence = $5, image = $6, updated_at = now()
		WHERE name = $1`,
		p.Name, p.Client, p.Date, p.Status, p.Sequence, p.Image)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	keep := make([]int64, 0, len(p.Lines))
	for _, l := range p.Lines {
		if l.ID != 0 {
			keep = append(keep, l.ID)
		}
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM parcel_lines WHERE parcel = $1 AND NOT (id = ANY($2))`, p.Name, keep); err != nil {
		return err
	}

	for i := range p.Lines {
		l := &p.Lines[i]
		if l.ID == 0 {
			if err := r.insertLine(ctx, p.Name, i+1, l); err != nil {
				return err
			}
			continue
		}
		l.Idx = i + 1
		_, err := r.tx.Exec(ctx, `
			UPDATE parcel_lines
			SET idx = $3, item_code = $4, description = $5, total_qty = $6, delivered_qty = $7,
			    remaining_qty = $8, status = $9, last_delivered_at = $10
			WHERE id = $1 AND parcel = $2`,
			l.ID, p.Name, l.Idx, l.ItemCode, l.Description, l.TotalQty, l.DeliveredQty, l.RemainingQty, l.Status, l.LastDeliveredAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, name string, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE parcels SET status = $2, updated_at = now() WHERE name = $1`, name, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteParcel removes the parcel, its lines and attachment rows, returning
// the attachments so their objects can be removed after commit.
func (r *txRepo) DeleteParcel(ctx context.Context, name string) ([]Attachment, error) {
	rows, err := r.tx.Query(ctx, `
		DELETE FROM attachments
		WHERE attached_to_type = 'parcel' AND attached_to_name = $1
		RETURNING id::text, attached_to_name, file_name, object_key, content_type, size, meta, created_at`, name)
	if err != nil {
		return nil, err
	}
	atts, err := scanAttachments(rows)
	if err != nil {
		return nil, err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM parcels WHERE name = $1`, name)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return atts, nil
}

func (r *txRepo) ActiveParcelNames(ctx context.Context, note string) ([]string, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT name FROM parcels
		WHERE delivery_note = $1 AND status <> $2
		ORDER BY created_at, name`, note, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *txRepo) SetSequence(ctx context.Context, parcel, sequence string) error {
	_, err := r.tx.Exec(ctx, `UPDATE parcels SET sequence = $2 WHERE name = $1`, parcel, sequence)
	return err
}

func (r *txRepo) SetParcelCount(ctx context.Context, note string, count int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE delivery_notes SET parcel_count = $2 WHERE name = $1`, note, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (r *txRepo) DeliveredByItem(ctx context.Context, note string) (map[string]decimal.Decimal, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT l.item_code, sum(l.delivered_qty)
		FROM parcel_lines l
		JOIN parcels p ON p.name = l.parcel
		WHERE p.delivery_note = $1 AND p.status <> $2
		GROUP BY l.item_code`, note, StatusCancelled)
	if err != nil {
		return nil, err
	}
	return scanQuantities(rows)
}

func (r *txRepo) SetItemDelivered(ctx context.Context, itemID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE delivery_note_items SET delivered_qty = $2 WHERE id = $1`, itemID, qty)
	return err
}

// rowQuerier is satisfied by the pool and a transaction.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadNote(ctx context.Context, q rowQuerier, query, name string) (Note, error) {
	var n Note
	err := q.QueryRow(ctx, query, name).Scan(&n.Name, &n.Customer, &n.CustomerName, &n.ParcelCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Note{}, ErrNoteNotFound
		}
		return Note{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, item_code, coalesce(description, ''), qty, delivered_qty
		FROM delivery_note_items
		WHERE delivery_note = $1
		ORDER BY idx, id`, name)
	if err != nil {
		return Note{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var item NoteItem
		if err := rows.Scan(&item.ID, &item.ItemCode, &item.Description, &item.Qty, &item.DeliveredQty); err != nil {
			return Note{}, err
		}
		n.Items = append(n.Items, item)
	}
	return n, rows.Err()
}

func loadParcel(ctx context.Context, q rowQuerier, name string, lock bool) (Parcel, error) {
	query := `
		SELECT name, delivery_note, coalesce(client, ''), date, status, coalesce(sequence, ''),
		       coalesce(image, ''), created_at, updated_at
		FROM parcels
		WHERE name = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var p Parcel
	err := q.QueryRow(ctx, query, name).Scan(
		&p.Name, &p.DeliveryNote, &p.Client, &p.Date, &p.Status, &p.Sequence,
		&p.Image, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parcel{}, ErrNotFound
		}
		return Parcel{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, idx, item_code, coalesce(description, ''), total_qty, delivered_qty, remaining_qty,
		       status, last_delivered_at
		FROM parcel_lines
		WHERE parcel = $1
		ORDER BY idx, id`, name)
	if err != nil {
		return Parcel{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.Idx, &l.ItemCode, &l.Description, &l.TotalQty, &l.DeliveredQty,
			&l.RemainingQty, &l.Status, &l.LastDeliveredAt); err != nil {
			return Parcel{}, err
		}
		p.Lines = append(p.Lines, l)
	}
	return p, rows.Err()
}

func allocations(ctx context.Context, q rowQuerier, note, excludeParcel string) (map[string]decimal.Decimal, error) {
	rows, err := q.Query(ctx, `
		SELECT l.item_code, sum(l.total_qty)
		FROM parcel_lines l
		JOIN parcels p ON p.name = l.parcel
		WHERE p.delivery_note = $1 AND p.status <> $2 AND p.name <> $3
		GROUP BY l.item_code`, note, StatusCancelled, excludeParcel)
	if err != nil {
		return nil, err
	}
	return scanQuantities(rows)
}

func scanQuantities(rows pgx.Rows) (map[string]decimal.Decimal, error) {
	defer rows.Close()
	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var code string
		var qty decimal.Decimal
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		out[code] = qty
	}
	return out, rows.Err()
}

func scanAttachments(rows pgx.Rows) ([]Attachment, error) {
	defer rows.Close()
	var out []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.Parcel, &a.FileName, &a.ObjectKey, &a.ContentType, &a.Size, &a.Meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
