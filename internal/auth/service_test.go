package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/logistics/internal/shared"
)

type memoryRepo struct {
	tokens   map[string]*Token
	touched  int
	findErr  error
	touchErr error
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tokens: map[string]*Token{}}
}

func (m *memoryRepo) FindByPrefix(_ context.Context, prefix string) (*Token, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	t, ok := m.tokens[prefix]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryRepo) CreateToken(_ context.Context, t *Token) error {
	t.ID = int64(len(m.tokens) + 1)
	t.CreatedAt = time.Now()
	m.tokens[t.Prefix] = t
	return nil
}

func (m *memoryRepo) TouchToken(context.Context, int64, time.Time) error {
	m.touched++
	return m.touchErr
}

func TestIssueAndAuthenticate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, discardLogger())

	raw, token, err := svc.Issue(context.Background(), "warehouse", []string{shared.PermParcelView}, 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "lgx_"+token.Prefix+"_"))
	require.NotContains(t, token.SecretHash, strings.Split(raw, "_")[2])

	principal, err := svc.Authenticate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "warehouse", principal.Name)
	assert.Equal(t, []string{shared.PermParcelView}, principal.Permissions)
	assert.Equal(t, 1, repo.touched)
}

func TestAuthenticateRejects(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, discardLogger())
	raw, token, err := svc.Issue(context.Background(), "driver", nil, time.Hour)
	require.NoError(t, err)

	cases := []string{
		"",
		"not-a-token",
		"lgx_" + token.Prefix + "_wrongsecret",
		"lgx_unknown_" + strings.Split(raw, "_")[2],
		"abc_" + token.Prefix + "_" + strings.Split(raw, "_")[2],
	}
	for _, c := range cases {
		_, err := svc.Authenticate(context.Background(), c)
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials, c)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Authenticate(context.Background(), raw)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	svc.now = time.Now
	repo.tokens[token.Prefix].Revoked = true
	_, err = svc.Authenticate(context.Background(), raw)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestMiddleware(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, discardLogger())
	raw, _, err := svc.Issue(context.Background(), "ops", []string{shared.PermParcelManage}, 0)
	require.NoError(t, err)
	h := NewHandler(nil, svc)

	var actor string
	var perms []string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = shared.ActorFromContext(r.Context())
		perms = shared.PermissionsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.Middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", actor)
	assert.Equal(t, []string{shared.PermParcelManage}, perms)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer lgx_bad_token")
	rec = httptest.NewRecorder()
	h.Middleware(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	h.Middleware(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, shared.SystemActor, actor)
	assert.Nil(t, perms)
}

func TestAuthenticateSurfacesLookupFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, discardLogger())
	raw, _, err := svc.Issue(context.Background(), "ops", nil, 0)
	require.NoError(t, err)

	repo.findErr = errors.New("connection refused")
	_, err = svc.Authenticate(context.Background(), raw)
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.ErrorIs(t, err, repo.findErr)

	h := NewHandler(discardLogger(), svc)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthenticateIgnoresTouchFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, discardLogger())
	raw, _, err := svc.Issue(context.Background(), "ops", nil, 0)
	require.NoError(t, err)

	repo.touchErr = errors.New("read-only transaction")
	principal, err := svc.Authenticate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "ops", principal.Name)
	assert.Equal(t, 1, repo.touched)
}
