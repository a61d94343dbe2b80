package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics/internal/platform/db"
	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// Repository defines persistence operations for API tokens.
type Repository interface {
	FindByPrefix(ctx context.Context, prefix string) (*Token, error)
	CreateToken(ctx context.Context, token *Token) error
	TouchToken(ctx context.Context, id int64, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByPrefix fetches a token by its public prefix.
func (r *PGRepository) FindByPrefix(ctx context.Context, prefix string) (*Token, error) {
	var t Token
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, prefix, secret_hash, permissions, revoked, expires_at, created_at, last_used_at
		FROM api_tokens
		WHERE prefix = $1`, prefix).Scan(
		&t.ID, &t.Name, &t.Prefix, &t.SecretHash, &t.Permissions, &t.Revoked, &t.ExpiresAt, &t.CreatedAt, &t.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateToken stores a new token row.
func (r *PGRepository) CreateToken(ctx context.Context, t *Token) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO api_tokens (name, prefix, secret_hash, permissions, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		t.Name, t.Prefix, t.SecretHash, t.Permissions, t.ExpiresAt,
	).Scan(&t.ID, &t.CreatedAt)
	if db.IsUniqueViolation(err) {
		return httpx.ErrDuplicate
	}
	return err
}

// TouchToken records the last successful use.
func (r *PGRepository) TouchToken(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

var _ Repository = (*PGRepository)(nil)
