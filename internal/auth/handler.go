package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// Handler authenticates requests and exposes the caller identity.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Get("/scopes", h.handleScopes)
}

// Middleware resolves the bearer token into an actor. Requests without a
// token continue anonymously; an invalid token is rejected.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "expected a bearer token")
			return
		}
		principal, err := h.service.Authenticate(r.Context(), raw)
		if err != nil {
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				h.logger.Error("token lookup failed", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			h.logger.Info("token rejected", slog.String("remote", r.RemoteAddr))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		ctx := shared.ContextWithActor(r.Context(), principal.Name, principal.Permissions)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	perms := shared.PermissionsFromContext(r.Context())
	if perms == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, Principal{Name: shared.ActorFromContext(r.Context()), Permissions: perms})
}

func (h *Handler) handleScopes(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, shared.LogisticsScopes())
}
