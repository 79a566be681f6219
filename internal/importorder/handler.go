package importorder

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-import/internal/rbac"
	"github.com/odyssey-erp/odyssey-import/internal/spreadsheet"
)

// Handler exposes import orders and their Excel wizard.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	wizard         *Wizard
	validator      *validator.Validate
	rbac           rbac.Middleware
	maxUploadBytes int64
}

// NewHandler creates a Handler.
func NewHandler(logger *slog.Logger, service *Service, wizard *Wizard, rbac rbac.Middleware, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{logger: logger, service: service, wizard: wizard, validator: validator.New(), rbac: rbac, maxUploadBytes: maxUploadBytes}
}

// MountRoutes registers import order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermImportOrderView, rbac.PermImportOrderEdit))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermImportOrderEdit))
		r.Post("/", h.create)
		r.Post("/{id}/confirm", h.transition(h.service.Confirm))
		r.Post("/{id}/cancel", h.transition(h.service.Cancel))
		r.Post("/{id}/draft", h.transition(h.service.SetDraft))

		r.Get("/wizard/template", h.template)
		r.Post("/wizard", h.preview)
		r.Get("/wizard/{sid}", h.showSession)
		r.Post("/wizard/{sid}/validate", h.validate)
		r.Post("/wizard/{sid}/confirm", h.confirmSession)
		r.Post("/wizard/{sid}/reset", h.reset)
	})
}

type createRequest struct {
	VendorID      int64               `json:"vendor_id" validate:"required,gt=0"`
	Currency      string              `json:"currency" validate:"omitempty,len=3"`
	Date          string              `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ExpectedDate  string              `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	PickingTypeID int64               `json:"picking_type_id" validate:"gte=0"`
	Lines         []createLineRequest `json:"lines" validate:"dive"`
}

type createLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type confirmRequest struct {
	VendorID int64  `json:"vendor_id" validate:"gte=0"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

type orderResponse struct {
	Order
	AmountTotal decimal.Decimal `json:"amount_total"`
}

type sessionResponse struct {
	Session
	Counts map[RowStatus]int `json:"counts"`
}

func respondOrder(w http.ResponseWriter, status int, order Order) {
	httpx.JSON(w, status, orderResponse{Order: order, AmountTotal: order.AmountTotal()})
}

func respondSession(w http.ResponseWriter, status int, sess Session) {
	httpx.JSON(w, status, sessionResponse{Session: sess, Counts: sess.Counts()})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("import order "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{State: State(q.Get("state"))}
	filter.VendorID, _ = strconv.ParseInt(q.Get("vendor_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	respondOrder(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{VendorID: req.VendorID, Currency: req.Currency, PickingTypeID: req.PickingTypeID}
	input.Date, _ = time.Parse(time.DateOnly, req.Date)
	input.ExpectedDate, _ = time.Parse(time.DateOnly, req.ExpectedDate)
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create", err)
		return
	}
	respondOrder(w, http.StatusCreated, order)
}

func (h *Handler) transition(action func(context.Context, int64) (Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		order, err := action(r.Context(), id)
		if err != nil {
			h.fail(w, "transition", err)
			return
		}
		respondOrder(w, http.StatusOK, order)
	}
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Upload Too Large", "file exceeds the upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Problem(w, http.StatusRequestEntityTooLarge, "Upload Too Large", err.Error())
			return
		}
		httpx.RespondError(w, ErrEmptyFile)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, ErrEmptyFile)
		return
	}
	defer file.Close()

	input := PreviewInput{FileName: header.Filename, Currency: r.FormValue("currency")}
	input.ImportOrderID, _ = strconv.ParseInt(r.FormValue("import_order_id"), 10, 64)
	input.VendorID, _ = strconv.ParseInt(r.FormValue("vendor_id"), 10, 64)
	sess, err := h.wizard.Preview(r.Context(), input, file)
	if err != nil {
		h.fail(w, "preview", err)
		return
	}
	respondSession(w, http.StatusCreated, sess)
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.wizard.Get(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		h.fail(w, "get session", err)
		return
	}
	respondSession(w, http.StatusOK, sess)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.wizard.Validate(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		h.fail(w, "validate", err)
		return
	}
	respondSession(w, http.StatusOK, sess)
}

func (h *Handler) confirmSession(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sess, err := h.wizard.Confirm(r.Context(), chi.URLParam(r, "sid"), ConfirmInput{VendorID: req.VendorID, Currency: req.Currency})
	if err != nil {
		h.fail(w, "confirm", err)
		return
	}
	respondSession(w, http.StatusOK, sess)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	sess, err := h.wizard.Reset(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		h.fail(w, "reset", err)
		return
	}
	respondSession(w, http.StatusOK, sess)
}

func (h *Handler) template(w http.ResponseWriter, _ *http.Request) {
	if err := spreadsheet.ServeTemplate(w, "import-order-lines.xlsx", spreadsheet.Headers[:spreadsheet.ColDate]); err != nil {
		h.fail(w, "template", err)
	}
}
