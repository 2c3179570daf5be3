package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a row of the users table. PasswordHash is only populated by stores that hash in process.
type User struct {
	UserID       int64     `db:"user_id"`
	UUID         uuid.UUID `db:"user_uuid"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	Theme        int       `db:"theme"`
	PasswordHash string    `db:"pwhash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Identity returns the cacheable projection of the user.
func (u *User) Identity() Identity {
	return Identity{
		UserID:   u.UserID,
		UUID:     u.UUID,
		Username: u.Username,
		Theme:    u.Theme,
	}
}

// Identity is the small projection of a user handed to the web layer and kept in the identity cache.
// It never carries credentials.
type Identity struct {
	UserID   int64     `json:"user_id"`
	UUID     uuid.UUID `json:"uuid"`
	Username string    `json:"username"`
	Theme    int       `json:"theme"`
}
