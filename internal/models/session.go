package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a browser session held server-side.
// Only the session ID (signed) travels in the sess cookie; everything else lives in the session store.
type Session struct {
	SessionID uuid.UUID // UUIDv7
	UserID    int64     // 0 while the session is anonymous

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string

	// Persisted is false for a fresh anonymous session that has not been written to the store yet.
	Persisted bool
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsAuthenticated returns true if a user is bound to the session.
func (s *Session) IsAuthenticated() bool {
	return s.UserID != 0
}
