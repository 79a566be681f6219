package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-import/internal/rbac"
)

// Handler manages master data endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermMasterdataView, rbac.PermMasterdataEdit))
		r.Get("/vendors", h.listVendors)
		r.Get("/vendors/{id}", h.showVendor)
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.showProduct)
		r.Get("/locations", h.listLocations)
		r.Get("/picking-types", h.listPickingTypes)
		r.Get("/picking-types/{id}", h.showPickingType)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermMasterdataEdit))
		r.Post("/vendors", h.createVendor)
		r.Post("/products", h.createProduct)
		r.Post("/locations", h.createLocation)
		r.Post("/picking-types", h.createPickingType)
	})
}

type vendorRequest struct {
	Code               string `json:"code" validate:"required,max=32"`
	Name               string `json:"name" validate:"required,max=128"`
	IsImportVendor     bool   `json:"is_import_vendor"`
	SupplierLocationID *int64 `json:"supplier_location_id" validate:"omitempty,gt=0"`
}

type productRequest struct {
	SKU              string `json:"sku" validate:"required,max=64"`
	Name             string `json:"name" validate:"required,max=128"`
	ManufacturerCode string `json:"manufacturer_code" validate:"max=64"`
}

type locationRequest struct {
	Code  string `json:"code" validate:"required,max=32"`
	Name  string `json:"name" validate:"required,max=128"`
	Usage string `json:"usage" validate:"omitempty,oneof=supplier internal"`
}

type pickingTypeRequest struct {
	Code                  string `json:"code" validate:"required,max=32"`
	Name                  string `json:"name" validate:"required,max=128"`
	DefaultDestLocationID *int64 `json:"default_dest_location_id" validate:"omitempty,gt=0"`
	UseImportShipment     bool   `json:"use_import_shipment"`
}

func listFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return ListFilters{Search: q.Get("search"), Limit: limit, Offset: offset}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("masterdata "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.service.ListVendors(r.Context(), listFilters(r))
	if err != nil {
		h.fail(w, "list vendors", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendors)
}

func (h *Handler) showVendor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	vendor, err := h.service.GetVendor(r.Context(), id)
	if err != nil {
		h.fail(w, "get vendor", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) createVendor(w http.ResponseWriter, r *http.Request) {
	var req vendorRequest
	if !h.decode(w, r, &req) {
		return
	}
	vendor, err := h.service.CreateVendor(r.Context(), Vendor{
		Code:               req.Code,
		Name:               req.Name,
		IsImportVendor:     req.IsImportVendor,
		SupplierLocationID: req.SupplierLocationID,
	})
	if err != nil {
		h.fail(w, "create vendor", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vendor)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), listFilters(r))
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), Product{SKU: req.SKU, Name: req.Name, ManufacturerCode: req.ManufacturerCode})
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.ListLocations(r.Context(), listFilters(r))
	if err != nil {
		h.fail(w, "list locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, locations)
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !h.decode(w, r, &req) {
		return
	}
	location, err := h.service.CreateLocation(r.Context(), Location{Code: req.Code, Name: req.Name, Usage: LocationUsage(req.Usage)})
	if err != nil {
		h.fail(w, "create location", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, location)
}

func (h *Handler) listPickingTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListPickingTypes(r.Context(), listFilters(r))
	if err != nil {
		h.fail(w, "list picking types", err)
		return
	}
	httpx.JSON(w, http.StatusOK, types)
}

func (h *Handler) showPickingType(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pt, err := h.service.GetPickingType(r.Context(), id)
	if err != nil {
		h.fail(w, "get picking type", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pt)
}

func (h *Handler) createPickingType(w http.ResponseWriter, r *http.Request) {
	var req pickingTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	pt, err := h.service.CreatePickingType(r.Context(), PickingType{
		Code:                  req.Code,
		Name:                  req.Name,
		DefaultDestLocationID: req.DefaultDestLocationID,
		UseImportShipment:     req.UseImportShipment,
	})
	if err != nil {
		h.fail(w, "create picking type", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pt)
}
