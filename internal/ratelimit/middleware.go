package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/kasir-api/internal/common"
)

// Allower decides whether one more event for key fits the limit.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config selects the bucket for a request and its budget. An empty key or a
// non-positive Max leaves the request unlimited.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler answers 429 RATE_LIMITED once a bucket is spent. When the limiter
// itself fails the request is let through and OnError is told.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(r *http.Request, key string, err error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil || h.Config.Max <= 0 {
		return next
	}
	limit := strconv.Itoa(h.Config.Max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := h.Config.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(r, key, err)
			}
			next.ServeHTTP(w, r)
			return
		}

		out := w.Header()
		out.Set("X-RateLimit-Limit", limit)
		out.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		out.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := retryAfter(time.Until(resetAt))
		out.Set("Retry-After", strconv.Itoa(wait))
		common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited, "rate limit exceeded",
			map[string]int{"retry_after_seconds": wait})
	})
}

// retryAfter rounds up to whole seconds and never advertises zero.
func retryAfter(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}
