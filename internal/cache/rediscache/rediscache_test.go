package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}

func TestSeenSet_Flow(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewSeenSet(mr.Addr(), "")
	ctx := context.Background()

	ok, err := s.Contains(ctx, "m1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Add(ctx, "m2", "m1"))
	require.NoError(t, s.Add(ctx))
	ok, err = s.Contains(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2"}, ids)

	require.NoError(t, s.Remove(ctx, "m1"))
	ok, _ = s.Contains(ctx, "m1")
	require.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	n, _ = s.Count(ctx)
	require.Equal(t, 0, n)
}

func TestRateLimiter_AllowCarrier_PerMinuteBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 30, 0, time.UTC)

	ok, err := rl.AllowCarrier(ctx, "ups", 1, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = rl.AllowCarrier(ctx, "ups", 1, now)
	require.False(t, ok)

	ok, _ = rl.AllowCarrier(ctx, "usps", 1, now)
	require.True(t, ok)

	ok, _ = rl.AllowCarrier(ctx, "ups", 1, now.Add(time.Minute))
	require.True(t, ok)
	require.True(t, mr.Exists("rl:carrier:ups:202501011000"))
}
