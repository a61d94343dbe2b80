package items

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository finds items by barcode.
type Repository interface {
	// FindByBarcodes returns the item of the first barcode in codes that
	// exists, or nil.
	FindByBarcodes(ctx context.Context, codes []string) (*Item, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) FindByBarcodes(ctx context.Context, codes []string) (*Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `
		SELECT i.name, coalesce(i.item_name, i.name)
		FROM item_barcodes b
		JOIN items i ON i.name = b.item
		JOIN unnest($1::text[]) WITH ORDINALITY AS c(code, ord) ON c.code = b.barcode
		ORDER BY c.ord
		LIMIT 1`, codes).Scan(&item.Name, &item.ItemName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}
