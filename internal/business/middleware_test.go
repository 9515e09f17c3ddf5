package business_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/business"
)

const shop = "7f1c2f4e-5a8d-4d8e-9a4f-2b1f7f3c9a10"

func TestMiddlewareInjectsBusiness(t *testing.T) {
	var seen string
	h := business.NewResolver("", "").Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = business.From(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil)
	req.Header.Set(business.Header, shop)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, shop, seen)
}

func TestMiddlewareRejectsMissingOrInvalid(t *testing.T) {
	h := business.NewResolver("", "").Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "BUSINESS_REQUIRED")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(business.Header, "shop-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareUsesDefault(t *testing.T) {
	var seen string
	h := business.NewResolver("", shop).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = business.From(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, shop, seen)

	id, err := business.UUIDFrom(business.With(context.Background(), shop))
	require.NoError(t, err)
	require.Equal(t, shop, id.String())
	_, err = business.UUIDFrom(business.With(context.Background(), "nope"))
	require.ErrorIs(t, err, business.ErrInvalid)
}
