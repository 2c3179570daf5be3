package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the email is unknown so lookups for missing users cost the same as real ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("mangawatch-dummy-password"), bcrypt.MinCost)

// UserStore implements store.UserStore using in-memory storage with bcrypt password hashes.
type UserStore struct {
	mu sync.RWMutex

	cost    int
	nextID  int64
	users   map[int64]*models.User // user_id -> User
	byEmail map[string]int64       // lower(email) -> user_id
}

// NewUserStore creates a new in-memory user store. A zero cost uses bcrypt.DefaultCost.
func NewUserStore(cost int) *UserStore {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserStore{
		cost:    cost,
		users:   make(map[int64]*models.User),
		byEmail: make(map[string]int64),
	}
}

// Create inserts a user, hashing password with bcrypt.
func (s *UserStore) Create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return nil, store.ErrEmailInUse
	}

	s.nextID++
	now := time.Now()
	clone := *user
	clone.UserID = s.nextID
	if clone.UUID == uuid.Nil {
		clone.UUID = uuid.New()
	}
	clone.PasswordHash = string(hash)
	clone.CreatedAt = now
	clone.UpdatedAt = now

	s.users[clone.UserID] = &clone
	s.byEmail[key] = clone.UserID

	out := clone
	return &out, nil
}

// VerifyPassword returns the user with email if password matches.
func (s *UserStore) VerifyPassword(ctx context.Context, email, password string) (*models.User, error) {
	s.mu.RLock()
	id, exists := s.byEmail[strings.ToLower(email)]
	var user models.User
	if exists {
		user = *s.users[id]
	}
	s.mu.RUnlock()

	if !exists {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, store.ErrUserNotFound
	}

	return checkPassword(&user, password)
}

// VerifyPasswordByID returns the user with userID if password matches.
func (s *UserStore) VerifyPasswordByID(ctx context.Context, userID int64, password string) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return checkPassword(user, password)
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// Update applies the non-nil fields of update.
func (s *UserStore) Update(ctx context.Context, userID int64, update store.UserUpdate) (*models.User, error) {
	var hash []byte
	if update.Password != nil {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(*update.Password), s.cost)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	if update.Email != nil {
		newKey := strings.ToLower(*update.Email)
		oldKey := strings.ToLower(user.Email)
		if owner, taken := s.byEmail[newKey]; taken && owner != userID {
			return nil, store.ErrEmailInUse
		}
		delete(s.byEmail, oldKey)
		s.byEmail[newKey] = userID
		user.Email = *update.Email
	}
	if update.Username != nil {
		user.Username = *update.Username
	}
	if hash != nil {
		user.PasswordHash = string(hash)
	}
	user.UpdatedAt = time.Now()

	clone := *user
	return &clone, nil
}

func checkPassword(user *models.User, password string) (*models.User, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) getByUUID(id uuid.UUID) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.UUID == id {
			clone := *user
			return &clone, true
		}
	}
	return nil, false
}
