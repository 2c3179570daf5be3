package models

import "time"

// RememberToken is a persisted remember-me token. The raw secret is never stored, only its hash.
// Lookup is unique per user and survives rotation; HashedSecret changes on every rotation.
type RememberToken struct {
	UserID       int64
	Lookup       string
	HashedSecret string
	ExpiresAt    time.Time
}

// IsExpired reports whether the token is past its expiry at now.
func (t *RememberToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenWithUser is the joined (token, user) row used when validating a remember-me cookie.
type TokenWithUser struct {
	Token RememberToken
	User  User
}
