package customers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/rbac"
	"github.com/odyssey-erp/logistics/internal/shared"
)

type memoryRepo struct {
	customers map[string]Customer
	contacts  map[string][]Contact
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: map[string]Customer{}, contacts: map[string][]Contact{}}
}

func (m *memoryRepo) Get(_ context.Context, name string) (*Customer, error) {
	c, ok := m.customers[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *memoryRepo) Upsert(_ context.Context, c *Customer) error {
	m.customers[c.Name] = *c
	return nil
}

func (m *memoryRepo) Contacts(_ context.Context, customer string) ([]Contact, error) {
	out := append([]Contact{}, m.contacts[customer]...)
	return out, nil
}

func strPtr(s string) *string { return &s }

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"société générale":     "SOCIÉTÉ GÉNÉRALE",
		"  café de l'église  ": "CAFÉ DE L'ÉGLISE",
		"ÉTS Martin":           "ÉTS MARTIN",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestService_Save(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	c, err := svc.Save(ctx, "CUST-001", SaveCustomerRequest{CustomerName: "boulangerie dupré", Phone: strPtr("+33 1 23 45 67 89")})
	require.NoError(t, err)
	assert.Equal(t, "BOULANGERIE DUPRÉ", c.CustomerName)
	assert.Equal(t, "BOULANGERIE DUPRÉ", repo.customers["CUST-001"].CustomerName)

	_, err = svc.Save(ctx, "CUST-002", SaveCustomerRequest{CustomerName: "   "})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Get(ctx, "CUST-404")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestHandler_Contacts(t *testing.T) {
	repo := newMemoryRepo()
	repo.contacts["CUST-001"] = []Contact{
		{DocName: "CONT-1", Contact: "Jeanne Dupré", Designation: strPtr("Gérante"), Mobile: strPtr("0600000000"), Email: strPtr("jeanne@example.com")},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(repo), rbac.Middleware{Logger: logger})

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), "tester", []string{shared.PermCustomerManage})))
		})
	})
	router.Route("/api/customers", h.MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers/CUST-001/contacts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"docname":"CONT-1","contact":"Jeanne Dupré","designation":"Gérante","mobile":"0600000000","email":"jeanne@example.com"}]`, rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/customers/CUST-002", strings.NewReader(`{"customer_name":"épicerie fine"}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ÉPICERIE FINE"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/customers/CUST-003", strings.NewReader(`{"email":"not-an-email","customer_name":"x"}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
