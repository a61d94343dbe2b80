package delivery

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/rbac"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// Handler manages delivery note endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
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

// MountRoutes registers delivery note routes. Routes owned by other packages
// that live under a single note are attached through nested.
func (h *Handler) MountRoutes(r chi.Router, nested ...func(chi.Router)) {
	r.With(h.rbac.RequireAny(shared.PermDeliveryNoteView, shared.PermDeliveryNoteManage)).Get("/", h.list)
	r.With(h.rbac.RequireAll(shared.PermDeliveryNoteManage)).Post("/", h.create)

	r.Route("/{dn}", func(r chi.Router) {
		// Delivery note routes - View
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermDeliveryNoteView, shared.PermDeliveryNoteManage))
			r.Get("/", h.show)
		})

		// Delivery note routes - Manage
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermDeliveryNoteManage))
			r.Post("/submit", h.submit)
			r.Post("/complete", h.complete)
			r.Post("/cancel", h.cancel)
			r.Delete("/", h.delete)
		})

		for _, mount := range nested {
			mount(r)
		}
	})
}

// ============================================================================
// HANDLERS
// ============================================================================

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:   Status(q.Get("status")),
		Customer: q.Get("customer"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
		filter.Limit = limit
	}
	notes, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, notes)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	note, err := h.service.Get(r.Context(), chi.URLParam(r, "dn"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	note, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.respondNote(w, r, h.service.Submit)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.respondNote(w, r, h.service.Complete)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.respondNote(w, r, h.service.Cancel)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "dn")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondNote(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*Note, error)) {
	note, err := fn(r.Context(), chi.URLParam(r, "dn"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error("delivery note request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
