package parcel

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/rbac"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// Handler wires HTTP endpoints for parcels.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the parcel handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountNoteRoutes registers the parcel routes nested under a delivery note.
func (h *Handler) MountNoteRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermParcelView, shared.PermParcelManage))
		r.Get("/can-create-parcel", h.handleCanCreate)
		r.Get("/parcels", h.handleList)
		r.Get("/unpacked-items", h.handleUnpacked)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermParcelManage))
		r.Post("/parcels", h.handleCreate)
		r.Post("/parcels/recount", h.handleRecount)
	})
}

// MountRoutes registers routes addressed by parcel name.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermParcelView, shared.PermParcelManage, shared.PermParcelDeliver))
		r.Get("/{name}", h.handleGet)
		r.Get("/{name}/actions", h.handleActions)
		r.Get("/{name}/qr", h.handleQR)
		r.Get("/{name}/label", h.handleLabel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermParcelManage))
		r.Put("/{name}", h.handleUpdate)
		r.Delete("/{name}", h.handleDelete)
		r.Post("/{name}/status/{status}", h.handleStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermParcelDeliver, shared.PermParcelManage))
		r.Post("/{name}/lines/{line}/deliver", h.handleDeliverLine)
		r.Post("/{name}/lines/{line}/deliver-remaining", h.handleDeliverRemaining)
		r.Post("/{name}/lines/{line}/undeliverable", h.handleUndeliverable)
		r.Post("/{name}/deliver-all", h.handleDeliverAll)
	})
}

// MountPublicRoutes registers the unauthenticated tracking view.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/{name}", h.handlePublic)
}

var statusSlugs = map[string]Status{
	"new":           StatusNew,
	"prepared":      StatusPrepared,
	"picked-up":     StatusPickedUp,
	"delivered":     StatusDelivered,
	"cancelled":     StatusCancelled,
	"not-delivered": StatusNotDelivered,
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

type deliverRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Confirm  bool            `json:"confirm"`
}

type undeliverableRequest struct {
	Reason  string `json:"reason" validate:"max=500"`
	Confirm bool   `json:"confirm"`
}

func (h *Handler) handleCanCreate(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.CanCreate(r.Context(), chi.URLParam(r, "dn"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"available": ok})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), chi.URLParam(r, "dn"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleUnpacked(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Unpacked(r.Context(), chi.URLParam(r, "dn"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	name, err := h.service.Create(r.Context(), chi.URLParam(r, "dn"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"name": name})
}

func (h *Handler) handleRecount(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ForceRecompute(r.Context(), chi.URLParam(r, "dn"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handlePublic(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.PublicView(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var input UpdateInput
	if err := httpx.Bind(r, &input); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), chi.URLParam(r, "name"), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.AvailableActions(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, actions)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	target, ok := statusSlugs[chi.URLParam(r, "status")]
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown status")
		return
	}
	var req confirmRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "name"), target, req.Confirm)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleQR(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	png, err := h.service.DownloadQR(r.Context(), name)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.File(w, "image/png", qrFilePrefix+name+".png", png)
}

func (h *Handler) handleLabel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	pdf, err := h.service.Label(r.Context(), name)
	if err != nil {
		if errors.Is(err, ErrLabelsDisabled) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
			return
		}
		h.fail(w, err)
		return
	}
	httpx.File(w, "application/pdf", name+".pdf", pdf)
}

func (h *Handler) handleDeliverLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}
	var req deliverRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.service.DeliverLine(r.Context(), chi.URLParam(r, "name"), lineID, req.Quantity, req.Confirm)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeliverRemaining(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.service.DeliverRemaining(r.Context(), chi.URLParam(r, "name"), lineID, req.Confirm)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleUndeliverable(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}
	var req undeliverableRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.service.MarkUndeliverable(r.Context(), chi.URLParam(r, "name"), lineID, req.Reason, req.Confirm)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeliverAll(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.service.DeliverAll(r.Context(), chi.URLParam(r, "name"), req.Confirm)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) lineID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "line"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid line id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrDuplicate) {
		h.logger.Error("parcel request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
