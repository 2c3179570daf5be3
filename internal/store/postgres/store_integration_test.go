//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestIntegration_UserStore(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	users := NewUserStore(pool)

	created, err := users.Create(ctx, &models.User{Username: "reader", Email: "reader@example.com"}, "hunter22")
	require.NoError(t, err)
	require.NotZero(t, created.UserID)
	require.NotEqual(t, uuid.Nil, created.UUID)
	require.NotEqual(t, "hunter22", created.PasswordHash)

	t.Run("verify password", func(t *testing.T) {
		user, err := users.VerifyPassword(ctx, "READER@example.com", "hunter22")
		require.NoError(t, err)
		require.Equal(t, created.UserID, user.UserID)

		_, err = users.VerifyPassword(ctx, "reader@example.com", "wrong")
		require.ErrorIs(t, err, store.ErrUserNotFound)

		_, err = users.VerifyPassword(ctx, "nobody@example.com", "hunter22")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := users.Create(ctx, &models.User{Username: "other", Email: "Reader@Example.com"}, "hunter22")
		require.ErrorIs(t, err, store.ErrEmailInUse)
	})

	t.Run("update password", func(t *testing.T) {
		password := "correct horse"
		username := "reader2"
		updated, err := users.Update(ctx, created.UserID, store.UserUpdate{Username: &username, Password: &password})
		require.NoError(t, err)
		require.Equal(t, "reader2", updated.Username)
		require.Equal(t, "reader@example.com", updated.Email)

		_, err = users.VerifyPasswordByID(ctx, created.UserID, "hunter22")
		require.ErrorIs(t, err, store.ErrUserNotFound)

		_, err = users.VerifyPasswordByID(ctx, created.UserID, password)
		require.NoError(t, err)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := users.Get(ctx, 999999)
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})
}

func TestIntegration_TokenStore(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	users := NewUserStore(pool)
	tokens := NewTokenStore(pool)

	user, err := users.Create(ctx, &models.User{Username: "reader", Email: "reader@example.com"}, "hunter22")
	require.NoError(t, err)

	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	for _, lookup := range []string{"lookupA", "lookupB", "lookupC"} {
		err := tokens.Insert(ctx, &models.RememberToken{
			UserID:       user.UserID,
			Lookup:       lookup,
			HashedSecret: "hash-" + lookup,
			ExpiresAt:    expiresAt,
		})
		require.NoError(t, err)
	}

	t.Run("find by uuid and lookup", func(t *testing.T) {
		found, err := tokens.FindByUUIDLookup(ctx, user.UUID, "lookupA")
		require.NoError(t, err)
		require.Equal(t, "hash-lookupA", found.Token.HashedSecret)
		require.Equal(t, user.UserID, found.User.UserID)
		require.Equal(t, "reader", found.User.Username)

		_, err = tokens.FindByUUIDLookup(ctx, uuid.New(), "lookupA")
		require.ErrorIs(t, err, store.ErrTokenNotFound)
	})

	t.Run("update hash keeps expiry", func(t *testing.T) {
		got, err := tokens.UpdateHash(ctx, user.UserID, "lookupA", "rotated")
		require.NoError(t, err)
		require.True(t, expiresAt.Equal(got))

		_, err = tokens.UpdateHash(ctx, user.UserID, "missing", "rotated")
		require.ErrorIs(t, err, store.ErrTokenNotFound)
	})

	t.Run("delete requires matching hash", func(t *testing.T) {
		deleted, err := tokens.Delete(ctx, user.UserID, "lookupA", "hash-lookupA")
		require.NoError(t, err)
		require.False(t, deleted)

		deleted, err = tokens.Delete(ctx, user.UserID, "lookupA", "rotated")
		require.NoError(t, err)
		require.True(t, deleted)
	})

	t.Run("delete others", func(t *testing.T) {
		count, err := tokens.DeleteByUserExcept(ctx, user.UserID, "lookupB")
		require.NoError(t, err)
		require.Equal(t, 1, count)

		count, err = tokens.DeleteByUser(ctx, user.UserID)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("expired tokens are invisible and swept", func(t *testing.T) {
		err := tokens.Insert(ctx, &models.RememberToken{
			UserID:       user.UserID,
			Lookup:       "stale",
			HashedSecret: "hash-stale",
			ExpiresAt:    time.Now().Add(-time.Minute),
		})
		require.NoError(t, err)

		_, err = tokens.FindByUUIDLookup(ctx, user.UUID, "stale")
		require.ErrorIs(t, err, store.ErrTokenNotFound)

		count, err := tokens.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}

func TestIntegration_SessionStore(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	users := NewUserStore(pool)
	sessions := NewSessionStore(pool)

	user, err := users.Create(ctx, &models.User{Username: "reader", Email: "reader@example.com"}, "hunter22")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	sess := &models.Session{
		SessionID:  uuid.Must(uuid.NewV7()),
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
		LastUsedAt: now,
		UserAgent:  "test-agent",
		IPAddress:  "192.0.2.10",
	}
	require.NoError(t, sessions.Create(ctx, sess))

	t.Run("anonymous round trip", func(t *testing.T) {
		got, err := sessions.Get(ctx, sess.SessionID)
		require.NoError(t, err)
		require.True(t, got.Persisted)
		require.False(t, got.IsAuthenticated())
		require.Equal(t, "192.0.2.10", got.IPAddress)
		require.Equal(t, "test-agent", got.UserAgent)
	})

	t.Run("bind and touch", func(t *testing.T) {
		require.NoError(t, sessions.SetUser(ctx, sess.SessionID, user.UserID))
		require.NoError(t, sessions.Touch(ctx, sess.SessionID, now.Add(2*time.Hour)))

		got, err := sessions.Get(ctx, sess.SessionID)
		require.NoError(t, err)
		require.Equal(t, user.UserID, got.UserID)
		require.True(t, now.Add(2*time.Hour).Equal(got.ExpiresAt))

		err = sessions.SetUser(ctx, uuid.Must(uuid.NewV7()), user.UserID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("delete by user", func(t *testing.T) {
		count, err := sessions.DeleteByUser(ctx, user.UserID)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		_, err = sessions.Get(ctx, sess.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("expired sessions", func(t *testing.T) {
		expired := &models.Session{
			SessionID:  uuid.Must(uuid.NewV7()),
			CreatedAt:  now.Add(-2 * time.Hour),
			ExpiresAt:  now.Add(-time.Hour),
			LastUsedAt: now.Add(-2 * time.Hour),
		}
		require.NoError(t, sessions.Create(ctx, expired))

		_, err := sessions.Get(ctx, expired.SessionID)
		require.ErrorIs(t, err, store.ErrSessionExpired)

		count, err := sessions.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}
