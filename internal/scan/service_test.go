package scan_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/scan"
)

const shop = "7f1c2f4e-5a8d-4d8e-9a4f-2b1f7f3c9a10"

type barcodeTable struct {
	products map[string]domain.Product
	err      error
}

func (b barcodeTable) LookupByBarcode(_ context.Context, code string) (domain.Product, bool, error) {
	if b.err != nil {
		return domain.Product{}, false, b.err
	}
	p, ok := b.products[code]
	return p, ok, nil
}

func (b barcodeTable) LookupByID(context.Context, string) (domain.Product, bool, error) {
	return domain.Product{}, false, nil
}

func newScanService(t *testing.T, cat scan.CatalogProvider) (*scan.Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &scan.Service{
		Catalog:   cat,
		Debouncer: scan.RedisDebouncer{R: client},
		Logger:    zerolog.Nop(),
	}, mr
}

func TestResolveDebouncesPerTerminal(t *testing.T) {
	obs.MustRegisterDomainMetrics("kasir_test", prometheus.NewRegistry())
	suppressedBefore := testutil.ToFloat64(obs.ScanTotal.WithLabelValues("suppressed"))

	svc, mr := newScanService(t, barcodeTable{products: map[string]domain.Product{"899": {ID: "p-1", Barcode: "899"}}})
	ctx := business.With(context.Background(), shop)

	res, err := svc.Resolve(ctx, "till-1", "899")
	require.NoError(t, err)
	require.Equal(t, scan.Matched, res.Kind)
	require.Equal(t, "p-1", res.Product.ID)
	require.True(t, mr.Exists(shop+":scan:debounce:till-1:899"))

	res, err = svc.Resolve(ctx, "till-1", "899")
	require.NoError(t, err)
	require.Equal(t, scan.Suppressed, res.Kind)
	require.Equal(t, scan.ReasonCooldown, res.Reason)

	res, err = svc.Resolve(ctx, "till-2", "899")
	require.NoError(t, err)
	require.Equal(t, scan.Matched, res.Kind, "another terminal has its own window")

	mr.FastForward(scan.DefaultCooldown)
	res, err = svc.Resolve(ctx, "till-1", "899")
	require.NoError(t, err)
	require.Equal(t, scan.Matched, res.Kind)

	res, err = svc.Resolve(ctx, "till-1", "000")
	require.NoError(t, err)
	require.Equal(t, scan.NoMatch, res.Kind)
	require.Nil(t, res.Product)

	require.Equal(t, suppressedBefore+1, testutil.ToFloat64(obs.ScanTotal.WithLabelValues("suppressed")))

	_, err = svc.Resolve(ctx, " ", "899")
	require.ErrorIs(t, err, scan.ErrTerminalRequired)
}

func TestResolveLookupFailureReleasesCooldown(t *testing.T) {
	boom := errors.New("db down")
	svc, mr := newScanService(t, barcodeTable{err: boom})
	ctx := business.With(context.Background(), shop)

	_, err := svc.Resolve(ctx, "till-1", "899")
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists(shop+":scan:debounce:till-1:899"))
}

func TestScanHandler(t *testing.T) {
	svc, _ := newScanService(t, barcodeTable{products: map[string]domain.Product{"899": {ID: "p-1", Barcode: "899"}}})
	h := business.NewResolver("", "").Middleware(http.HandlerFunc((&scan.Handler{Svc: svc}).Scan))

	post := func(terminal, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(body))
		req.Header.Set(business.Header, shop)
		if terminal != "" {
			req.Header.Set(scan.TerminalHeader, terminal)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post("till-9", `{"code":"899"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data scan.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "matched", body.Data.Outcome)

	rec = post("till-9", `{"code":"899"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "suppressed", body.Data.Outcome)

	rec = post("", `{"code":"899"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
