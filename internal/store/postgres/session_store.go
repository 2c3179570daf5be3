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

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

// Create creates a new session in the database.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (
			session_id, user_id,
			created_at, expires_at, last_used_at,
			user_agent, ip_address
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::inet
		)
	`

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		nullableUserID(session.UserID),
		session.CreatedAt,
		session.ExpiresAt,
		session.LastUsedAt,
		session.UserAgent,
		nullableIP(session.IPAddress),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Int64("user_id", session.UserID).
		Msg("Created session")

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	query := `
		SELECT
			session_id, user_id,
			created_at, expires_at, last_used_at,
			user_agent, host(ip_address)
		FROM sessions
		WHERE session_id = $1
	`

	var (
		session   models.Session
		userID    *int64
		ipAddress *string
	)
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.SessionID,
		&userID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastUsedAt,
		&session.UserAgent,
		&ipAddress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	if userID != nil {
		session.UserID = *userID
	}
	if ipAddress != nil {
		session.IPAddress = *ipAddress
	}
	session.Persisted = true

	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	return &session, nil
}

// SetUser binds a user to the session, or unbinds it when userID is 0.
func (s *SessionStore) SetUser(ctx context.Context, sessionID uuid.UUID, userID int64) error {
	query := `UPDATE sessions SET user_id = $2 WHERE session_id = $1`

	result, err := s.pool.Exec(ctx, query, sessionID, nullableUserID(userID))
	if err != nil {
		return fmt.Errorf("failed to bind session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	return nil
}

// Touch updates last_used_at and slides the expiry.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	query := `
		UPDATE sessions
		SET last_used_at = NOW(), expires_at = $2
		WHERE session_id = $1
	`

	result, err := s.pool.Exec(ctx, query, sessionID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	return nil
}

// Delete deletes a session by ID.
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	query := `DELETE FROM sessions WHERE session_id = $1`

	result, err := s.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().
		Str("session_id", sessionID.String()).
		Msg("Deleted session")

	return nil
}

// DeleteByUser deletes all sessions bound to a user.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	query := `DELETE FROM sessions WHERE user_id = $1`

	result, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions by user: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())

	log.Info().
		Int64("user_id", userID).
		Int("count", count).
		Msg("Deleted all sessions for user")

	return count, nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM sessions WHERE expires_at < NOW()`

	result, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())

	if count > 0 {
		log.Info().
			Int("count", count).
			Msg("Deleted expired sessions")
	}

	return count, nil
}

func nullableUserID(userID int64) *int64 {
	if userID == 0 {
		return nil
	}
	return &userID
}

func nullableIP(ip string) *string {
	if ip == "" {
		return nil
	}
	return &ip
}
