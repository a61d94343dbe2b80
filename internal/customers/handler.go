package customers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/rbac"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(
	logger *slog.Logger,
	service *Service,
	rbac rbac.Middleware,
) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		rbac:    rbac,
	}
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	customer, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveCustomerRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	customer, err := h.service.Save(r.Context(), chi.URLParam(r, "name"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.service.Contacts(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, contacts)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error("customer request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
