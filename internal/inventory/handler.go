package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-import/internal/rbac"
)

// Handler exposes receipt and movement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler creates a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView, rbac.PermInventoryMove))
		r.Get("/receipts/{id}", h.showReceipt)
		r.Get("/balances", h.showBalance)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInventoryMove))
		r.Post("/receipts/{id}/confirm", h.confirmReceipt)
		r.Post("/moves/{id}/cancel", h.cancelMove)
		r.Post("/moves/{id}/done", h.markDone)
		r.Delete("/moves/{id}", h.deleteMove)
	})
}

type receiptResponse struct {
	Receipt Receipt `json:"receipt"`
	Moves   []Move  `json:"moves"`
}

type doneRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("inventory "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) showReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipt, moves, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		h.fail(w, "get receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receiptResponse{Receipt: receipt, Moves: moves})
}

func (h *Handler) showBalance(w http.ResponseWriter, r *http.Request) {
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if locationID <= 0 || productID <= 0 {
		httpx.RespondError(w, ErrValidation)
		return
	}
	balance, err := h.service.GetBalance(r.Context(), locationID, productID)
	if err != nil {
		h.fail(w, "get balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) confirmReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ConfirmReceipt(r.Context(), id); err != nil {
		h.fail(w, "confirm receipt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelMove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	move, err := h.service.CancelMove(r.Context(), id)
	if err != nil {
		h.fail(w, "cancel move", err)
		return
	}
	httpx.JSON(w, http.StatusOK, move)
}

func (h *Handler) markDone(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req doneRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	move, err := h.service.MarkMoveDone(r.Context(), id, req.Quantity)
	if err != nil {
		h.fail(w, "mark move done", err)
		return
	}
	httpx.JSON(w, http.StatusOK, move)
}

func (h *Handler) deleteMove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteMove(r.Context(), id); err != nil {
		h.fail(w, "delete move", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
