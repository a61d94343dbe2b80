package items

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/rbac"
	"github.com/odyssey-erp/logistics/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermItemView, shared.PermParcelManage, shared.PermParcelDeliver))
		r.Get("/barcode/{barcode}", h.Lookup)
	})
}

// Lookup answers the item for a barcode, or JSON null when unknown.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.LookupByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		h.logger.Error("barcode lookup failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}
