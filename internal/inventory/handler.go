package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/rbac"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView, shared.PermTransferManage))
		r.Get("/stock-entries/{name}", h.handleGetEntry)
		r.Get("/stock/balance", h.handleBalance)
		r.Get("/stock/ledger", h.handleLedger)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermTransferManage))
		r.Post("/stock-entries", h.handleCreateEntry)
		r.Post("/stock-entries/{name}/submit", h.handleSubmitEntry)
	})
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetStockEntry(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var input EntryInput
	if err := httpx.Bind(r, &input); err != nil {
		h.fail(w, err)
		return
	}
	entry, err := h.service.CreateStockEntry(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleSubmitEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.SubmitStockEntry(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	balance, err := h.service.GetBalance(r.Context(), q.Get("warehouse"), q.Get("item_code"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := LedgerFilter{Warehouse: q.Get("warehouse"), ItemCode: q.Get("item_code")}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
	}
	entries, err := h.service.Ledger(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error("inventory request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
