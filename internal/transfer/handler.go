package transfer

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/rbac"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// Handler exposes transfer batch endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers transfer batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermTransferManage, shared.PermStockView))
		r.Get("/{name}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermTransferManage))
		r.Post("/", h.create)
		r.Put("/{name}", h.update)
		r.Post("/{name}/submit", h.submit)
		r.Post("/{name}/cancel", h.cancel)
		r.Post("/{name}/stock-transfer", h.stockTransfer)
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	batch, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	batch, err := h.service.Update(r.Context(), chi.URLParam(r, "name"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Submit(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Cancel(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) stockTransfer(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.AutoTransferStock(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"stock_entry": entry})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error("transfer request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
