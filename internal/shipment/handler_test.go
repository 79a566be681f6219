package shipment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-import/internal/rbac"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
)

type grants map[int64][]string

func (g grants) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	return g[userID], nil
}

func newRouter(f *fixture) http.Handler {
	mw := rbac.Middleware{Source: grants{
		1: {rbac.PermShipmentView, rbac.PermShipmentEdit, rbac.PermShipmentDelete},
		2: {rbac.PermShipmentView},
	}}
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, mw)
	r := chi.NewRouter()
	r.Route("/shipments", handler.MountRoutes)
	return r
}

func asActor(req *http.Request, id int64) *http.Request {
	return req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: id}))
}

func TestHandlerDeleteNeedsConfirm(t *testing.T) {
	f := newFixture(t, nil)
	router := newRouter(f)
	created := f.lines(t, poLine(1, 1, "PO001", "A", "10", day(1)))
	target := "/shipments?ids=" + strconv.FormatInt(created[0].ID, 10)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodDelete, target, nil), 1))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, f.repo.lines, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodDelete, target+"&confirm=true", nil), 2))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, f.repo.lines, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodDelete, target+"&confirm=true", nil), 1))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, f.repo.lines)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asActor(httptest.NewRequest(http.MethodDelete, "/shipments?ids=x&confirm=true", nil), 1))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCreateReceiptValidatesDate(t *testing.T) {
	f := newFixture(t, nil)
	router := newRouter(f)
	created := f.lines(t, poLine(1, 1, "PO001", "A", "10", day(1)))
	id := strconv.FormatInt(created[0].ID, 10)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/shipments/receipts", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, asActor(req, 1))
		return rec
	}

	rec := post(`{"line_ids":[` + id + `],"quantity":"4","date":"07/03/2024"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = post(`{"line_ids":[],"date":"2024-03-07"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Empty(t, f.inv.receipts)

	rec = post(`{"line_ids":[` + id + `],"quantity":"4","date":"2024-03-07"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.inv.receipts, 1)
}
