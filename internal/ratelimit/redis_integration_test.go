//go:build integration

package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, ctx context.Context) (*redis.Client, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, client.Ping(ctx).Err())

	cleanup := func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_RedisLimiter(t *testing.T) {
	ctx := context.Background()
	client, cleanup := setupRedisContainer(t, ctx)
	defer cleanup()

	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	now := start
	l := NewRedisLimiter(client, DefaultPolicy())
	l.now = func() time.Time { return now }

	key := LoginKey("198.51.100.1")

	t.Run("free attempts", func(t *testing.T) {
		for i := 1; i < 15; i++ {
			d, err := l.Check(ctx, key)
			require.NoError(t, err)
			require.True(t, d.Allowed, "attempt %d", i)
			require.True(t, d.NextAllowedAt.IsZero(), "attempt %d", i)
		}

		d, err := l.Check(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.True(t, d.NextAllowedAt.Equal(start.Add(500*time.Millisecond)))
	})

	t.Run("throttled attempts push next allowed", func(t *testing.T) {
		var previous time.Time
		for i := range 10 {
			now = now.Add(100 * time.Millisecond)
			d, err := l.Check(ctx, key)
			require.NoError(t, err)
			require.False(t, d.Allowed, "attempt %d", i)
			require.True(t, d.NextAllowedAt.After(previous))
			previous = d.NextAllowedAt
		}
	})

	t.Run("key expires after idle expiry", func(t *testing.T) {
		ttl, err := client.PTTL(ctx, redisKeyPrefix+key).Result()
		require.NoError(t, err)
		require.Greater(t, ttl, 23*time.Hour)
	})

	t.Run("reset", func(t *testing.T) {
		require.NoError(t, l.Reset(ctx, key))

		d, err := l.Check(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.True(t, d.NextAllowedAt.IsZero())
	})
}
