package ratelimit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	client, _ := newRedis(t)
	handler := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: client, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return r.Header.Get(common.OperatorHeader) },
			Window: time.Minute,
			Max:    1,
		},
	}.Middleware(okHandler())

	send := func(operator string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
		if operator != "" {
			req.Header.Set(common.OperatorHeader, operator)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusCreated, send("cashier-1").Code)

	rr := send("cashier-1")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.Positive(t, retry)
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, common.CodeRateLimited, body.Error.Code)

	// No key means no limit.
	require.Equal(t, http.StatusCreated, send("").Code)
	require.Equal(t, http.StatusCreated, send("").Code)
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	var (
		got    error
		gotKey string
	)
	handler := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: client},
		Config:  ratelimit.Config{Key: func(*http.Request) string { return "till-3" }, Window: time.Second, Max: 1},
		OnError: func(_ *http.Request, key string, err error) { got, gotKey = err, key },
	}.Middleware(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Error(t, got)
	require.Equal(t, "till-3", gotKey)
}

func TestHandlerZeroMaxDisablesLimit(t *testing.T) {
	client, _ := newRedis(t)
	handler := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: client},
		Config:  ratelimit.Config{Key: func(*http.Request) string { return "k" }, Window: time.Minute},
	}.Middleware(okHandler())
	for range 3 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil))
		require.Equal(t, http.StatusCreated, rr.Code)
		require.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	}
}
