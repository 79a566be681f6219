package shipmentimport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-import/internal/rbac"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
	"github.com/odyssey-erp/odyssey-import/internal/spreadsheet"
)

type grants map[int64][]string

func (g grants) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	return g[userID], nil
}

func newRouter(t *testing.T, h *harness, maxBytes int64) http.Handler {
	t.Helper()
	mw := rbac.Middleware{Source: grants{1: {rbac.PermShipmentImport}}}
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), h.svc, mw, maxBytes)
	r := chi.NewRouter()
	r.Route("/shipment-imports", handler.MountRoutes)
	return r
}

func asActor(req *http.Request, id int64) *http.Request {
	return req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: id}))
}

func uploadRequest(t *testing.T, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "shipment.xlsx")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/shipment-imports/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHandlerPreviewValidateConfirm(t *testing.T) {
	h := newHarness(t, "en")
	router := newRouter(t, h, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(uploadRequest(t, scenarioFile(t).Bytes()), 1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, 5, created.Counts[RowPending])
	require.Equal(t, 1, created.Counts[RowFailed])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodPost, "/shipment-imports/"+created.ID+"/validate", nil), 1))
	require.Equal(t, http.StatusOK, rec.Code)
	var validated sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &validated))
	require.Equal(t, StateValidated, validated.State)
	require.Equal(t, 2, validated.Counts[RowWarning])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodPost, "/shipment-imports/"+created.ID+"/confirm", nil), 1))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodPost, "/shipment-imports/"+created.ID+"/confirm", nil), 1))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerErrors(t *testing.T) {
	h := newHarness(t, "en")
	router := newRouter(t, h, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodGet, "/shipment-imports/missing", nil), 1))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(uploadRequest(t, []byte("not a workbook")), 1))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodGet, "/shipment-imports/template", nil), 2))
	require.Equal(t, http.StatusForbidden, rec.Code)

	small := newRouter(t, h, 64)
	rec = httptest.NewRecorder()
	small.ServeHTTP(rec, asActor(uploadRequest(t, scenarioFile(t).Bytes()), 1))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandlerTemplate(t *testing.T) {
	h := newHarness(t, "en")
	rec := httptest.NewRecorder()
	newRouter(t, h, 0).ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodGet, "/shipment-imports/template", nil), 1))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, spreadsheet.ContentType, rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "shipment-import.xlsx")
	require.NotZero(t, rec.Body.Len())
}
