package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// This implementation is for testing and development - data is lost on restart.
type SessionStore struct {
	mu sync.RWMutex

	sessions       map[uuid.UUID]*models.Session    // session_id -> Session
	sessionsByUser map[int64]map[uuid.UUID]struct{} // user_id -> set of session_id
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:       make(map[uuid.UUID]*models.Session),
		sessionsByUser: make(map[int64]map[uuid.UUID]struct{}),
	}
}

// Create creates a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *session
	clone.Persisted = true
	s.sessions[session.SessionID] = &clone
	s.indexUser(clone.UserID, clone.SessionID)

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	clone := *session
	return &clone, nil
}

// SetUser binds a user to the session, or unbinds it when userID is 0.
func (s *SessionStore) SetUser(ctx context.Context, sessionID uuid.UUID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	s.unindexUser(session.UserID, sessionID)
	session.UserID = userID
	s.indexUser(userID, sessionID)

	return nil
}

// Touch updates last_used_at and slides the expiry.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	session.LastUsedAt = time.Now()
	session.ExpiresAt = expiresAt
	return nil
}

// Delete deletes a session by ID (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	s.unindexUser(session.UserID, sessionID)
	delete(s.sessions, sessionID)

	return nil
}

// DeleteByUser deletes all sessions for a user (logout everywhere).
func (s *SessionStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, exists := s.sessionsByUser[userID]
	if !exists {
		return 0, nil
	}

	for id := range ids {
		delete(s.sessions, id)
	}
	delete(s.sessionsByUser, userID)

	return len(ids), nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			s.unindexUser(session.UserID, id)
			delete(s.sessions, id)
			count++
		}
	}

	return count, nil
}

func (s *SessionStore) indexUser(userID int64, sessionID uuid.UUID) {
	if userID == 0 {
		return
	}
	ids, ok := s.sessionsByUser[userID]
	if !ok {
		ids = make(map[uuid.UUID]struct{})
		s.sessionsByUser[userID] = ids
	}
	ids[sessionID] = struct{}{}
}

// unindexUser removes a session ID from the user's session set, dropping empty sets.
func (s *SessionStore) unindexUser(userID int64, sessionID uuid.UUID) {
	ids, ok := s.sessionsByUser[userID]
	if !ok {
		return
	}
	delete(ids, sessionID)
	if len(ids) == 0 {
		delete(s.sessionsByUser, userID)
	}
}
