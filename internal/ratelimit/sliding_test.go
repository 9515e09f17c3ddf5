package ratelimit_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/ratelimit"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestSlidingWindowPerOperator(t *testing.T) {
	client, mr := newRedis(t)
	limiter := ratelimit.SlidingWindow{Client: client, Prefix: "rl:writes:"}
	ctx := context.Background()
	window := 2 * time.Second

	for i := 0; i < 2; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "shop:op:cashier-1", window, 2)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 1-i, remaining)
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, "shop:op:cashier-1", window, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
	require.WithinDuration(t, time.Now().Add(window), reset, window)

	// Rejections are not recorded.
	members, err := client.ZCard(ctx, "rl:writes:shop:op:cashier-1").Result()
	require.NoError(t, err)
	require.EqualValues(t, 2, members)

	// Other operators have their own budget.
	allowed, _, _, err = limiter.Allow(ctx, "shop:op:cashier-2", window, 2)
	require.NoError(t, err)
	require.True(t, allowed)

	mr.FastForward(window)
	allowed, _, _, err = limiter.Allow(ctx, "shop:op:cashier-1", window, 2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestSlidingWindowDisabled(t *testing.T) {
	allowed, remaining, _, err := ratelimit.SlidingWindow{}.Allow(context.Background(), "k", time.Second, 3)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 3, remaining)
}
