package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMemoryLimiter(start time.Time) (*MemoryLimiter, *time.Time) {
	now := start
	l := NewMemoryLimiter(DefaultPolicy())
	l.now = func() time.Time { return now }
	return l, &now
}

func TestPolicy_Schedule(t *testing.T) {
	delays := DefaultPolicy().schedule()

	require.Equal(t, 500*time.Millisecond, delays[0])
	require.Equal(t, time.Second, delays[1])
	require.Equal(t, 2*time.Second, delays[2])
	require.Equal(t, 15*time.Minute, delays[len(delays)-1])

	for i := 1; i < len(delays); i++ {
		require.Greater(t, delays[i], delays[i-1])
	}

	require.Equal(t, 15*time.Minute, delayFor(delays, 1000))
}

func TestMemoryLimiter_FreeAttempts(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, _ := newTestMemoryLimiter(start)

	for i := 1; i < 15; i++ {
		d, err := l.Check(ctx, LoginKey("198.51.100.1"))
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d", i)
		require.True(t, d.NextAllowedAt.IsZero(), "attempt %d", i)
	}

	d, err := l.Check(ctx, LoginKey("198.51.100.1"))
	require.NoError(t, err)
	require.True(t, d.Allowed, "15th attempt is allowed")
	require.Equal(t, start.Add(500*time.Millisecond), d.NextAllowedAt)

	d, err = l.Check(ctx, LoginKey("198.51.100.1"))
	require.NoError(t, err)
	require.False(t, d.Allowed, "16th attempt is throttled")

	d, err = l.Check(ctx, TokenKey("198.51.100.1"))
	require.NoError(t, err)
	require.True(t, d.Allowed, "namespaces are independent")
}

func TestMemoryLimiter_DeniedAttemptsPushNextAllowed(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, now := newTestMemoryLimiter(start)
	key := LoginKey("203.0.113.5")

	for range 15 {
		_, err := l.Check(ctx, key)
		require.NoError(t, err)
	}

	var previous time.Time
	for i := range 30 {
		*now = now.Add(100 * time.Millisecond)
		d, err := l.Check(ctx, key)
		require.NoError(t, err)
		require.False(t, d.Allowed, "attempt %d", i)
		require.True(t, d.NextAllowedAt.After(previous), "attempt %d", i)
		require.True(t, d.NextAllowedAt.After(*now))
		previous = d.NextAllowedAt
	}

	t.Run("allowed again after the delay", func(t *testing.T) {
		*now = previous
		d, err := l.Check(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, now.Add(15*time.Minute), d.NextAllowedAt)
	})
}

func TestMemoryLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestMemoryLimiter(time.Now())
	key := LoginKey("192.0.2.10")

	for range 16 {
		_, err := l.Check(ctx, key)
		require.NoError(t, err)
	}

	require.NoError(t, l.Reset(ctx, key))

	d, err := l.Check(ctx, key)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.True(t, d.NextAllowedAt.IsZero())
}

func TestMemoryLimiter_IdleExpiry(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, now := newTestMemoryLimiter(start)
	key := TokenKey("192.0.2.11")

	for range 20 {
		_, err := l.Check(ctx, key)
		require.NoError(t, err)
	}

	*now = now.Add(24 * time.Hour)

	count, err := l.DeleteIdle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	d, err := l.Check(ctx, key)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.True(t, d.NextAllowedAt.IsZero())
}
