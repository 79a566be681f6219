package shipmentimport

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-import/internal/rbac"
	"github.com/odyssey-erp/odyssey-import/internal/spreadsheet"
)

// Handler exposes the shipment import wizard.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	rbac           rbac.Middleware
	maxUploadBytes int64
}

// NewHandler creates a Handler. Uploads larger than maxUploadBytes are rejected.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{logger: logger, service: service, rbac: rbac, maxUploadBytes: maxUploadBytes}
}

// MountRoutes registers wizard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAll(rbac.PermShipmentImport))
	r.Get("/template", h.template)
	r.Post("/", h.preview)
	r.Get("/{id}", h.show)
	r.Post("/{id}/validate", h.validate)
	r.Post("/{id}/confirm", h.confirm)
	r.Post("/{id}/reset", h.reset)
}

type sessionResponse struct {
	Session
	Counts map[RowStatus]int `json:"counts"`
}

func respondSession(w http.ResponseWriter, status int, sess Session) {
	httpx.JSON(w, status, sessionResponse{Session: sess, Counts: sess.Counts()})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("shipment import "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
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

	sess, err := h.service.Preview(r.Context(), header.Filename, file)
	if err != nil {
		h.fail(w, "preview", err)
		return
	}
	respondSession(w, http.StatusCreated, sess)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	respondSession(w, http.StatusOK, sess)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Validate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "validate", err)
		return
	}
	respondSession(w, http.StatusOK, sess)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "confirm", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "reset", err)
		return
	}
	respondSession(w, http.StatusOK, sess)
}

func (h *Handler) template(w http.ResponseWriter, _ *http.Request) {
	if err := spreadsheet.ServeTemplate(w, "shipment-import.xlsx", spreadsheet.Headers); err != nil {
		h.fail(w, "template", err)
	}
}
