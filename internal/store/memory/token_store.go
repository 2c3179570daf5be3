package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
)

type tokenKey struct {
	userID int64
	lookup string
}

// TokenStore implements store.TokenStore using in-memory storage.
// Joined reads go through the UserStore it was created with.
type TokenStore struct {
	mu sync.RWMutex

	users  *UserStore
	tokens map[tokenKey]*models.RememberToken
	now    func() time.Time
}

// NewTokenStore creates a new in-memory token store backed by users for the joined lookups.
func NewTokenStore(users *UserStore) *TokenStore {
	return &TokenStore{
		users:  users,
		tokens: make(map[tokenKey]*models.RememberToken),
		now:    time.Now,
	}
}

// Insert stores a new token row, replacing any row with the same (user, lookup).
func (s *TokenStore) Insert(ctx context.Context, token *models.RememberToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	s.tokens[tokenKey{token.UserID, token.Lookup}] = &clone
	return nil
}

// UpdateHash replaces the hashed secret of a live row and returns its expiry.
func (s *TokenStore) UpdateHash(ctx context.Context, userID int64, lookup, hashedSecret string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, exists := s.tokens[tokenKey{userID, lookup}]
	if !exists || token.IsExpired(s.now()) {
		return time.Time{}, store.ErrTokenNotFound
	}

	token.HashedSecret = hashedSecret
	return token.ExpiresAt, nil
}

// FindByUUIDLookup returns the live token for (userUUID, lookup) together with its owner.
func (s *TokenStore) FindByUUIDLookup(ctx context.Context, userUUID uuid.UUID, lookup string) (*models.TokenWithUser, error) {
	user, ok := s.users.getByUUID(userUUID)
	if !ok {
		return nil, store.ErrTokenNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	token, exists := s.tokens[tokenKey{user.UserID, lookup}]
	if !exists || token.IsExpired(s.now()) {
		return nil, store.ErrTokenNotFound
	}

	return &models.TokenWithUser{Token: *token, User: *user}, nil
}

// Delete removes the row matching all three values.
func (s *TokenStore) Delete(ctx context.Context, userID int64, lookup, hashedSecret string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey{userID, lookup}
	token, exists := s.tokens[key]
	if !exists || token.HashedSecret != hashedSecret {
		return false, nil
	}

	delete(s.tokens, key)
	return true, nil
}

// DeleteByUser removes every token of the user.
func (s *TokenStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	return s.deleteWhere(func(t *models.RememberToken) bool {
		return t.UserID == userID
	}), nil
}

// DeleteByUserExcept removes every token of the user except keepLookup.
func (s *TokenStore) DeleteByUserExcept(ctx context.Context, userID int64, keepLookup string) (int, error) {
	return s.deleteWhere(func(t *models.RememberToken) bool {
		return t.UserID == userID && t.Lookup != keepLookup
	}), nil
}

// DeleteExpired removes tokens past their expiry (cleanup job).
func (s *TokenStore) DeleteExpired(ctx context.Context) (int, error) {
	now := s.now()
	return s.deleteWhere(func(t *models.RememberToken) bool {
		return t.IsExpired(now)
	}), nil
}

// Count returns the number of stored tokens for userID, expired ones included.
func (s *TokenStore) Count(userID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.tokens {
		if key.userID == userID {
			n++
		}
	}
	return n
}

func (s *TokenStore) deleteWhere(match func(*models.RememberToken) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key, token := range s.tokens {
		if match(token) {
			delete(s.tokens, key)
			count++
		}
	}
	return count
}
