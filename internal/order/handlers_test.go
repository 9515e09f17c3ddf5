package order_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/order"
)

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(business.Header, shop)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func codeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestOrderEndpoints(t *testing.T) {
	w := newWorld()
	r := chi.NewRouter()
	r.Use(business.NewResolver("", "").Middleware)
	r.Route("/orders", (&order.Handler{Svc: newOrderService(w)}).Routes)

	rec := serve(t, r, http.MethodPost, "/orders", `{"items":[{"product_id":"A","quantity":2}],"delivery_date":"2026-10-20T10:00:00Z","tax_percentage":10}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "NO_CUSTOMER_SELECTED", codeOf(t, rec))

	rec = serve(t, r, http.MethodPost, "/orders", `{"customer_id":"cust-1","items":[{"product_id":"A","quantity":2}],"delivery_date":"2026-10-20T10:00:00Z","tax_percentage":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data domain.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID

	rec = serve(t, r, http.MethodPatch, "/orders/"+id, `{"items":[{"product_id":"A","quantity":1}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "ITEMS_IMMUTABLE", codeOf(t, rec))

	rec = serve(t, r, http.MethodGet, "/orders?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	rec = serve(t, r, http.MethodGet, "/orders?status=shipped", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, r, http.MethodPost, "/orders/"+id+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var done struct {
		Data order.Completion `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	require.Equal(t, domain.OrderCompleted, done.Data.Order.Status)
	require.Equal(t, done.Data.Sale.ID, done.Data.Order.SaleID)

	rec = serve(t, r, http.MethodPost, "/orders/"+id+"/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INVALID_TRANSITION", codeOf(t, rec))

	rec = serve(t, r, http.MethodPatch, "/orders/"+id, `{"delivery_date":"2026-10-21T10:00:00Z"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "NOT_EDITABLE", codeOf(t, rec))

	rec = serve(t, r, http.MethodGet, "/orders/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
