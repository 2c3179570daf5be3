package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/mangawatch/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailInUse      = errors.New("email is already in use")
	ErrTokenNotFound   = errors.New("remember me token not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// UserStore defines the user operations consumed by the authentication core.
type UserStore interface {
	// Create inserts a user and hashes the password. Returns ErrEmailInUse on a duplicate email.
	Create(ctx context.Context, user *models.User, password string) (*models.User, error)

	// VerifyPassword returns the user matching email whose salted password hash matches password.
	// Unknown email and wrong password both return ErrUserNotFound.
	VerifyPassword(ctx context.Context, email, password string) (*models.User, error)

	// VerifyPasswordByID is VerifyPassword keyed by user id.
	VerifyPasswordByID(ctx context.Context, userID int64, password string) (*models.User, error)

	// Get retrieves a user by id. Returns ErrUserNotFound if absent.
	Get(ctx context.Context, userID int64) (*models.User, error)

	// Update applies the non-nil fields of update. Returns ErrEmailInUse on a duplicate email.
	Update(ctx context.Context, userID int64, update UserUpdate) (*models.User, error)
}

// UserUpdate holds optional user modifications; nil fields are left untouched.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
}

// IsEmpty returns true if the update changes nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.Username == nil && u.Email == nil && u.Password == nil
}

// TokenStore persists remember-me tokens. Every method is atomic on its own.
type TokenStore interface {
	// Insert stores a new token row.
	Insert(ctx context.Context, token *models.RememberToken) error

	// UpdateHash replaces the hashed secret of the live (userID, lookup) row and returns its unchanged expiry.
	// Returns ErrTokenNotFound if no live row matches.
	UpdateHash(ctx context.Context, userID int64, lookup, hashedSecret string) (time.Time, error)

	// FindByUUIDLookup returns the live token identified by the owner's public UUID and lookup, joined with the owner.
	// Returns ErrTokenNotFound if no live row matches.
	FindByUUIDLookup(ctx context.Context, userUUID uuid.UUID, lookup string) (*models.TokenWithUser, error)

	// Delete removes the row matching all three values, reporting whether a row was removed.
	Delete(ctx context.Context, userID int64, lookup, hashedSecret string) (bool, error)

	// DeleteByUser removes every token of the user.
	DeleteByUser(ctx context.Context, userID int64) (int, error)

	// DeleteByUserExcept removes every token of the user except the one with keepLookup.
	DeleteByUserExcept(ctx context.Context, userID int64, keepLookup string) (int, error)

	// DeleteExpired removes tokens past their expiry (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}

// SessionStore persists server-side sessions.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *models.Session) error

	// Get retrieves a session by ID. Returns ErrSessionNotFound or ErrSessionExpired.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// SetUser binds (or with 0 unbinds) a user to the session.
	SetUser(ctx context.Context, sessionID uuid.UUID, userID int64) error

	// Touch updates last_used_at and slides the expiry.
	Touch(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error

	// Delete deletes a session by ID. Returns ErrSessionNotFound if absent.
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteByUser deletes all sessions bound to a user (logout everywhere).
	DeleteByUser(ctx context.Context, userID int64) (int, error)

	// DeleteExpired deletes all expired sessions (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}
