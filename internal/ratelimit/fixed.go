package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule limiter to Allower. The rate is fixed when the
// limiter is built, so window and max passed to Allow are ignored.
type FixedWindow struct {
	L *limiter.Limiter
}

// NewFixedWindow builds a Redis-backed fixed-window limiter of limit events per period.
func NewFixedWindow(rdb *redis.Client, prefix string, limit int, period time.Duration) (FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return FixedWindow{}, err
	}
	rate := limiter.Rate{Period: period, Limit: int64(limit)}
	return FixedWindow{L: limiter.New(store, rate)}, nil
}

// Allow counts one event for key.
func (f FixedWindow) Allow(ctx context.Context, key string, _ time.Duration, _ int) (bool, int, time.Time, error) {
	lctx, err := f.L.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now(), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}
