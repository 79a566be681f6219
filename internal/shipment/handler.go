package shipment

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-import/internal/rbac"
)

// Handler exposes shipment line endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler creates a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers shipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermShipmentView, rbac.PermShipmentEdit))
		r.Get("/", h.list)
		r.Get("/planned-supply", h.plannedSupply)
		r.Get("/{id}", h.show)
		r.Get("/{id}/receipts", h.receipts)
		r.Get("/{id}/ledger", h.ledger)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermShipmentEdit))
		r.Put("/{id}/imported-qty", h.setImported)
		r.Post("/receipts", h.createReceipt)
	})
	r.With(h.rbac.RequireAll(rbac.PermShipmentDelete)).Delete("/", h.delete)
}

type importedQtyRequest struct {
	ImportedQty decimal.Decimal `json:"imported_qty"`
}

type receiptRequest struct {
	LineIDs  []int64          `json:"line_ids" validate:"required,min=1,dive,gt=0"`
	Quantity *decimal.Decimal `json:"quantity"`
	Date     string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type plannedSupplyResponse struct {
	ProductID  int64           `json:"product_id"`
	LocationID int64           `json:"location_id"`
	Planned    decimal.Decimal `json:"planned"`
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("shipment "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Reference:   q.Get("reference"),
		OpenOnly:    q.Get("open") == "true",
		IncludeDone: q.Get("include_done") == "true",
	}
	filter.VendorID, _ = strconv.ParseInt(q.Get("vendor_id"), 10, 64)
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if filter.Reference != "" {
		filter.Reference = NormalizeReference(filter.Reference)
	}
	lines, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) receipts(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipts, err := h.service.RelatedReceipts(r.Context(), id)
	if err != nil {
		h.fail(w, "related receipts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	events, err := h.service.Ledger(r.Context(), id)
	if err != nil {
		h.fail(w, "ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, events)
}

func (h *Handler) setImported(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req importedQtyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.SetImportedQty(r.Context(), id, req.ImportedQty)
	if err != nil {
		h.fail(w, "set imported qty", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var date *time.Time
	if req.Date != "" {
		d, _ := time.Parse(time.DateOnly, req.Date)
		date = &d
	}
	results, err := h.service.CreateReceipt(r.Context(), req.LineIDs, req.Quantity, date)
	if err != nil {
		h.fail(w, "create receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, results)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	ids, err := httpx.IDList(r.URL.Query().Get("ids"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	confirmed := r.URL.Query().Get("confirm") == "true"
	if err := h.service.Delete(r.Context(), ids, confirmed); err != nil {
		h.fail(w, "delete lines", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) plannedSupply(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	planned, err := h.service.PlannedSupply(r.Context(), productID, locationID)
	if err != nil {
		h.fail(w, "planned supply", err)
		return
	}
	httpx.JSON(w, http.StatusOK, plannedSupplyResponse{ProductID: productID, LocationID: locationID, Planned: planned})
}
