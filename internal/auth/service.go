package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// Service wraps API token rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Issue creates a token and returns its raw value. The raw value cannot be
// recovered later.
func (s *Service) Issue(ctx context.Context, name string, permissions []string, ttl time.Duration) (string, *Token, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil, fmt.Errorf("auth: token name required")
	}
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	secret := strings.ReplaceAll(uuid.NewString(), "-", "")
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	t := &Token{Name: name, Prefix: prefix, SecretHash: string(hash), Permissions: permissions}
	if t.Permissions == nil {
		t.Permissions = []string{}
	}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		t.ExpiresAt = &exp
	}
	if err := s.repo.CreateToken(ctx, t); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s_%s_%s", TokenPrefix, prefix, secret), t, nil
}

// Authenticate validates a raw token.
func (s *Service) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	prefix, secret, ok := splitToken(raw)
	if !ok {
		return nil, shared.ErrInvalidCredentials
	}
	t, err := s.repo.FindByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, httpx.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: find token: %w", err)
	}
	now := s.now()
	if !t.Active(now) {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(t.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.repo.TouchToken(ctx, t.ID, now); err != nil {
		s.logger.Warn("token usage not recorded", slog.String("token", t.Prefix), slog.Any("error", err))
	}
	perms := t.Permissions
	if perms == nil {
		perms = []string{}
	}
	return &Principal{Name: t.Name, Permissions: perms}, nil
}

func splitToken(raw string) (prefix, secret string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), "_", 3)
	if len(parts) != 3 || parts[0] != TokenPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
