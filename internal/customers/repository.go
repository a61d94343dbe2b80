package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
)

var ErrNotFound = fmt.Errorf("customer: %w", httpx.ErrNotFound)

type Repository interface {
	Get(ctx context.Context, name string) (*Customer, error)
	Upsert(ctx context.Context, customer *Customer) error
	Contacts(ctx context.Context, customer string) ([]Contact, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db dbtx
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) Get(ctx context.Context, name string) (*Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `
		SELECT name, customer_name, email, phone, territory, created_at, updated_at
		FROM customers
		WHERE name = $1`, name).Scan(&c.Name, &c.CustomerName, &c.Email, &c.Phone, &c.Territory, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Upsert(ctx context.Context, c *Customer) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO customers (name, customer_name, email, phone, territory)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET customer_name = EXCLUDED.customer_name,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    territory = EXCLUDED.territory,
		    updated_at = now()
		RETURNING created_at, updated_at`,
		c.Name, c.CustomerName, c.Email, c.Phone, c.Territory,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// Contacts lists contacts linked to customer with their primary mobile and
// primary email.
func (r *repository) Contacts(ctx context.Context, customer string) ([]Contact, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			c.name,
			trim(concat_ws(' ', c.first_name, c.last_name)) AS contact,
			c.designation,
			max(p.phone) FILTER (WHERE p.is_primary_mobile) AS mobile,
			max(e.email_id) FILTER (WHERE e.is_primary) AS email
		FROM contacts c
		JOIN contact_links l ON l.contact = c.name AND l.link_type = 'Customer' AND l.link_name = $1
		LEFT JOIN contact_phones p ON p.contact = c.name
		LEFT JOIN contact_emails e ON e.contact = c.name
		GROUP BY c.name, c.first_name, c.last_name, c.designation
		ORDER BY c.name`, customer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]Contact, 0)
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.DocName, &c.Contact, &c.Designation, &c.Mobile, &c.Email); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
