package procurement

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-import/internal/rbac"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermProcurementView, rbac.PermProcurementEdit)).Get("/pos/{id}", h.showPO)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermProcurementEdit))
		r.Post("/pos", h.createPO)
		r.Post("/pos/{id}/confirm", h.confirmPO)
		r.Post("/pos/{id}/cancel", h.cancelPO)
	})
}

type createPORequest struct {
	VendorID      int64               `json:"vendor_id" validate:"required,gt=0"`
	PickingTypeID int64               `json:"picking_type_id" validate:"gte=0"`
	Currency      string              `json:"currency" validate:"omitempty,len=3"`
	ExpectedDate  string              `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	Note          string              `json:"note"`
	Lines         []createPOLineInput `json:"lines" validate:"required,min=1,dive"`
}

type createPOLineInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Note      string          `json:"note"`
}

type poResponse struct {
	PurchaseOrder
	Lines []POLine `json:"lines"`
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("procurement "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreatePOInput{
		VendorID:      req.VendorID,
		PickingTypeID: req.PickingTypeID,
		Currency:      req.Currency,
		Note:          req.Note,
	}
	if req.ExpectedDate != "" {
		input.ExpectedDate, _ = time.Parse(time.DateOnly, req.ExpectedDate)
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, POLineInput{ProductID: line.ProductID, Qty: line.Qty, Price: line.Price, Note: line.Note})
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.fail(w, "create po", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) showPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, lines, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.fail(w, "get po", err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse{PurchaseOrder: po, Lines: lines})
}

func (h *Handler) confirmPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	outcome, err := h.service.ConfirmPurchaseOrder(r.Context(), id)
	if err != nil {
		h.fail(w, "confirm po", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.CancelPurchaseOrder(r.Context(), id); err != nil {
		h.fail(w, "cancel po", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
