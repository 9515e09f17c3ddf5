// Package lock serialises work across API instances with Redis.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the lock is still held after the wait budget.
var ErrBusy = errors.New("lock: resource busy")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	// Wait bounds how long WithLock polls for the lock; zero waits until ctx ends.
	Wait time.Duration
}

// SaleKey is the lock key serialising refunds against one sale.
func SaleKey(businessID, saleID string) string {
	return "lock:refund:" + businessID + ":" + saleID
}

// WithLock executes fn while holding a lock for the provided key and reports
// how long acquisition took. The lock is released even if fn fails.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (time.Duration, error) {
	if l.R == nil {
		return 0, errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return 0, errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	token := uuid.NewString()
	start := time.Now()
	var deadline <-chan time.Time
	if l.Wait > 0 {
		timer := time.NewTimer(l.Wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return time.Since(start), err
		}
		if ok {
			waited := time.Since(start)
			defer l.release(context.WithoutCancel(ctx), key, token)
			return waited, fn(ctx)
		}
		backoff := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			backoff.Stop()
			return time.Since(start), ctx.Err()
		case <-deadline:
			backoff.Stop()
			return time.Since(start), ErrBusy
		case <-backoff.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
