package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-import/internal/importorder"
	"github.com/odyssey-erp/odyssey-import/internal/inventory"
	"github.com/odyssey-erp/odyssey-import/internal/masterdata"
	"github.com/odyssey-erp/odyssey-import/internal/observability"
	"github.com/odyssey-erp/odyssey-import/internal/procurement"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
	"github.com/odyssey-erp/odyssey-import/internal/shipmentimport"
	"github.com/odyssey-erp/odyssey-import/jobs"
)

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers are skipped.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	ShipmentHandler       *shipment.Handler
	ShipmentImportHandler *shipmentimport.Handler
	InventoryHandler      *inventory.Handler
	ProcurementHandler    *procurement.Handler
	ImportOrderHandler    *importorder.Handler
	MasterDataHandler     *masterdata.Handler
	JobHandler            *jobs.Handler
}

// NewRouter constructs the chi.Router with Odyssey defaults.
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		if params.ShipmentHandler != nil {
			r.Route("/shipments", params.ShipmentHandler.MountRoutes)
		}
		if params.ShipmentImportHandler != nil {
			r.Route("/shipment-imports", params.ShipmentImportHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.ProcurementHandler != nil {
			r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		}
		if params.ImportOrderHandler != nil {
			r.Route("/import-orders", params.ImportOrderHandler.MountRoutes)
		}
		if params.MasterDataHandler != nil {
			r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
		}
	})

	return r
}

// RouterFromContainer builds the router with every handler of c.
func RouterFromContainer(c *Container, inspector jobs.QueueInspector) http.Handler {
	params := RouterParams{
		Logger:                c.Logger,
		Config:                c.Config,
		Metrics:               c.Metrics,
		ShipmentHandler:       shipment.NewHandler(c.Logger, c.Shipments, c.RBAC),
		ShipmentImportHandler: shipmentimport.NewHandler(c.Logger, c.ShipmentImport, c.RBAC, c.Config.ImportMaxUploadBytes),
		InventoryHandler:      inventory.NewHandler(c.Logger, c.Inventory, c.RBAC),
		ProcurementHandler:    procurement.NewHandler(c.Logger, c.Procurement, c.RBAC),
		ImportOrderHandler:    importorder.NewHandler(c.Logger, c.ImportOrders, c.ImportOrderWizard, c.RBAC, c.Config.ImportMaxUploadBytes),
		MasterDataHandler:     masterdata.NewHandler(c.Logger, c.Masterdata, c.RBAC),
	}
	if inspector != nil {
		params.JobHandler = jobs.NewHandler(inspector, c.Logger)
	}
	return NewRouter(params)
}
