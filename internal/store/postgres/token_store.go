package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
)

// TokenStore implements store.TokenStore using PostgreSQL.
// Rows past expires_at are ignored by every read and rotation.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a new PostgreSQL-backed remember-me token store.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Insert stores a new token row.
func (s *TokenStore) Insert(ctx context.Context, token *models.RememberToken) error {
	query := `
		INSERT INTO auth_tokens (user_id, lookup, hashed_token, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, lookup) DO UPDATE
		SET hashed_token = EXCLUDED.hashed_token, expires_at = EXCLUDED.expires_at
	`

	_, err := s.pool.Exec(ctx, query, token.UserID, token.Lookup, token.HashedSecret, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", mapPostgresError(err))
	}

	return nil
}

// UpdateHash replaces the hash of the live (userID, lookup) row and returns its expiry.
func (s *TokenStore) UpdateHash(ctx context.Context, userID int64, lookup, hashedSecret string) (time.Time, error) {
	query := `
		UPDATE auth_tokens
		SET hashed_token = $3
		WHERE user_id = $1 AND lookup = $2 AND expires_at > NOW()
		RETURNING expires_at
	`

	var expiresAt time.Time
	err := s.pool.QueryRow(ctx, query, userID, lookup, hashedSecret).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, store.ErrTokenNotFound
		}
		return time.Time{}, fmt.Errorf("failed to update token: %w", mapPostgresError(err))
	}

	return expiresAt, nil
}

// FindByUUIDLookup returns the live token for (userUUID, lookup) joined with its owner.
func (s *TokenStore) FindByUUIDLookup(ctx context.Context, userUUID uuid.UUID, lookup string) (*models.TokenWithUser, error) {
	query := `
		SELECT
			t.user_id, t.lookup, t.hashed_token, t.expires_at,
			u.user_uuid, u.username, u.email, u.theme, u.created_at, u.updated_at
		FROM auth_tokens t
		JOIN users u ON u.user_id = t.user_id
		WHERE u.user_uuid = $1 AND t.lookup = $2 AND t.expires_at > NOW()
	`

	var found models.TokenWithUser
	err := s.pool.QueryRow(ctx, query, userUUID, lookup).Scan(
		&found.Token.UserID,
		&found.Token.Lookup,
		&found.Token.HashedSecret,
		&found.Token.ExpiresAt,
		&found.User.UUID,
		&found.User.Username,
		&found.User.Email,
		&found.User.Theme,
		&found.User.CreatedAt,
		&found.User.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", mapPostgresError(err))
	}
	found.User.UserID = found.Token.UserID

	return &found, nil
}

// Delete removes the row matching all three values.
func (s *TokenStore) Delete(ctx context.Context, userID int64, lookup, hashedSecret string) (bool, error) {
	query := `DELETE FROM auth_tokens WHERE user_id = $1 AND lookup = $2 AND hashed_token = $3`

	result, err := s.pool.Exec(ctx, query, userID, lookup, hashedSecret)
	if err != nil {
		return false, fmt.Errorf("failed to delete token: %w", mapPostgresError(err))
	}

	return result.RowsAffected() > 0, nil
}

// DeleteByUser removes every token of the user.
func (s *TokenStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	return s.deleteCount(ctx, "by user", `DELETE FROM auth_tokens WHERE user_id = $1`, userID)
}

// DeleteByUserExcept removes every token of the user except keepLookup.
func (s *TokenStore) DeleteByUserExcept(ctx context.Context, userID int64, keepLookup string) (int, error) {
	return s.deleteCount(ctx, "by user except", `DELETE FROM auth_tokens WHERE user_id = $1 AND lookup <> $2`, userID, keepLookup)
}

// DeleteExpired removes tokens past their expiry (cleanup job).
func (s *TokenStore) DeleteExpired(ctx context.Context) (int, error) {
	return s.deleteCount(ctx, "expired", `DELETE FROM auth_tokens WHERE expires_at <= NOW()`)
}

func (s *TokenStore) deleteCount(ctx context.Context, kind, query string, args ...any) (int, error) {
	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tokens %s: %w", kind, mapPostgresError(err))
	}

	count := int(result.RowsAffected())
	if count > 0 {
		log.Debug().Str("kind", kind).Int("count", count).Msg("Deleted remember me tokens")
	}

	return count, nil
}
