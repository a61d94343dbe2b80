package customers

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/logistics/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	// Customer routes
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCustomerManage, shared.PermDeliveryNoteView))
		r.Get("/{name}", h.Show)
		r.Get("/{name}/contacts", h.Contacts)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermCustomerManage))
		r.Put("/{name}", h.Save)
	})
}
