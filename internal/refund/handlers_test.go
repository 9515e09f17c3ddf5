package refund_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/refund"
)

func newRouter(t *testing.T, store *memStore) http.Handler {
	t.Helper()
	h := &refund.Handler{Svc: newService(t, store)}
	r := chi.NewRouter()
	r.Use(common.Operator)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(business.With(req.Context(), shop)))
		})
	})
	r.Route("/sales/{saleId}/refunds", h.Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.OperatorHeader, "cashier-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateRefundEndpoint(t *testing.T) {
	store := newMemStore(sale(3))
	h := newRouter(t, store)

	rec := do(t, h, http.MethodPost, "/sales/sale-1/refunds",
		`{"items":[{"product_id":"A","quantity":1}],"reason":"wrong_item","payment_method":"cash","notes":"box damaged"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Refund struct {
				TotalRefund string `json:"total_refund"`
				ProcessedBy string `json:"processed_by"`
				Notes       string `json:"notes"`
			} `json:"refund"`
			Sale struct {
				Status string `json:"status"`
			} `json:"sale"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "11", body.Data.Refund.TotalRefund)
	require.Equal(t, "cashier-1", body.Data.Refund.ProcessedBy)
	require.Equal(t, "box damaged", body.Data.Refund.Notes)
	require.Equal(t, "partial_refunded", body.Data.Sale.Status)

	rec = do(t, h, http.MethodGet, "/sales/sale-1/refunds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "wrong_item")

	rec = do(t, h, http.MethodGet, "/sales/sale-1/refunds/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":2`)
}

func TestCreateRefundErrors(t *testing.T) {
	store := newMemStore(sale(1))
	h := newRouter(t, store)

	rec := do(t, h, http.MethodPost, "/sales/sale-1/refunds",
		`{"items":[{"product_id":"A","quantity":2}],"reason":"other","payment_method":"cash"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), common.CodeExceedsAvailable)
	require.Contains(t, rec.Body.String(), `"available":1`)

	rec = do(t, h, http.MethodPost, "/sales/sale-1/refunds",
		`{"items":[{"product_id":"A","quantity":0}],"reason":"other","payment_method":"cash"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), common.CodeEmptyRefund)

	rec = do(t, h, http.MethodPost, "/sales/sale-1/refunds",
		`{"items":[],"reason":"other","payment_method":"cash"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), common.CodeEmptyRefund)

	rec = do(t, h, http.MethodPost, "/sales/sale-1/refunds",
		`{"items":[{"product_id":"A","quantity":1}],"reason":"bored","payment_method":"cash"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), common.CodeValidation)

	rec = do(t, h, http.MethodPost, "/sales/nope/refunds",
		`{"items":[{"product_id":"A","quantity":1}],"reason":"other","payment_method":"cash"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

}
