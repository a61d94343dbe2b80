package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/logistics/internal/auth"
	"github.com/odyssey-erp/logistics/internal/customers"
	"github.com/odyssey-erp/logistics/internal/delivery"
	"github.com/odyssey-erp/logistics/internal/inventory"
	"github.com/odyssey-erp/logistics/internal/items"
	"github.com/odyssey-erp/logistics/internal/observability"
	"github.com/odyssey-erp/logistics/internal/parcel"
	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/transfer"
	"github.com/odyssey-erp/logistics/jobs"
	"github.com/odyssey-erp/logistics/report"
)

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers are skipped.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AuthHandler      *auth.Handler
	DeliveryHandler  *delivery.Handler
	ParcelHandler    *parcel.Handler
	TransferHandler  *transfer.Handler
	InventoryHandler *inventory.Handler
	ItemsHandler     *items.Handler
	CustomerHandler  *customers.Handler
	ReportHandler    *report.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with the logistics defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.ParcelHandler != nil {
		r.Route("/public/parcels", params.ParcelHandler.MountPublicRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Use(params.AuthHandler.Middleware)
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.DeliveryHandler != nil {
			var nested []func(chi.Router)
			if params.ParcelHandler != nil {
				nested = append(nested, params.ParcelHandler.MountNoteRoutes)
			}
			r.Route("/delivery-notes", func(r chi.Router) {
				params.DeliveryHandler.MountRoutes(r, nested...)
			})
		}
		if params.ParcelHandler != nil {
			r.Route("/parcels", params.ParcelHandler.MountRoutes)
		}
		if params.TransferHandler != nil {
			r.Route("/transfers", params.TransferHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Group(params.InventoryHandler.MountRoutes)
		}
		if params.ItemsHandler != nil {
			r.Route("/items", params.ItemsHandler.MountRoutes)
		}
		if params.CustomerHandler != nil {
			r.Route("/customers", params.CustomerHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/report", params.ReportHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}
