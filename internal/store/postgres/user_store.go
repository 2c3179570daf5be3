package postgres

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
)

const userColumns = `user_id, user_uuid, username, email, theme, pwhash, created_at, updated_at`

// UserStore implements store.UserStore using PostgreSQL. Passwords are hashed with pgcrypto's
// crypt() using blowfish salts, so hashes never leave the database on the write path.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a user and hashes password with crypt(gen_salt('bf')).
func (s *UserStore) Create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	query := `
		INSERT INTO users (user_uuid, username, email, theme, pwhash)
		VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, crypt($5, gen_salt('bf')))
		RETURNING ` + userColumns

	var userUUID *uuid.UUID
	if user.UUID != uuid.Nil {
		userUUID = &user.UUID
	}

	var created models.User
	err := pgxscan.Get(ctx, s.pool, &created, query, userUUID, user.Username, user.Email, user.Theme, password)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	log.Debug().Int64("user_id", created.UserID).Msg("Created user")

	return &created, nil
}

// VerifyPassword returns the user with email whose hash matches password.
func (s *UserStore) VerifyPassword(ctx context.Context, email, password string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1) AND pwhash = crypt($2, pwhash)
	`

	return s.getOne(ctx, query, email, password)
}

// VerifyPasswordByID returns the user with userID whose hash matches password.
func (s *UserStore) VerifyPasswordByID(ctx context.Context, userID int64, password string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE user_id = $1 AND pwhash = crypt($2, pwhash)
	`

	return s.getOne(ctx, query, userID, password)
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	return s.getOne(ctx, query, userID)
}

// Update applies the non-nil fields of update in one statement.
func (s *UserStore) Update(ctx context.Context, userID int64, update store.UserUpdate) (*models.User, error) {
	query := `
		UPDATE users SET
			username = COALESCE($2, username),
			email = COALESCE($3, email),
			pwhash = CASE WHEN $4::text IS NULL THEN pwhash ELSE crypt($4::text, gen_salt('bf')) END,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + userColumns

	user, err := s.getOne(ctx, query, userID, update.Username, update.Email, update.Password)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int64("user_id", userID).
		Bool("email", update.Email != nil).
		Bool("password", update.Password != nil).
		Msg("Updated user")

	return user, nil
}

func (s *UserStore) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	if err := pgxscan.Get(ctx, s.pool, &user, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", mapPostgresError(err))
	}
	return &user, nil
}
