// Package identity keeps a bounded, process-local cache of the public user identity
// so authenticated requests avoid a store read.
package identity

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/wolfeidau/mangawatch/internal/models"
)

const (
	DefaultCapacity = 50
	DefaultMaxAge   = 24 * time.Hour
)

type entry struct {
	identity   models.Identity
	lastAccess time.Time
}

// Cache is an LRU of identities keyed by user id. An entry expires once it has not
// been read for maxAge; every Get extends its life.
type Cache struct {
	mu     sync.Mutex
	lru    *simplelru.LRU[int64, *entry]
	maxAge time.Duration
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(maxAge time.Duration) Option {
	return func(c *Cache) { c.maxAge = maxAge }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most capacity identities.
func New(capacity int, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	lru, err := simplelru.NewLRU[int64, *entry](capacity, nil)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		lru:    lru,
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the identity for userID and refreshes its age.
func (c *Cache) Get(userID int64) (models.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(userID)
	if !ok {
		return models.Identity{}, false
	}

	now := c.now()
	if c.expired(e, now) {
		c.lru.Remove(userID)
		return models.Identity{}, false
	}

	e.lastAccess = now
	return e.identity, true
}

// Set stores the identity, replacing any existing entry.
func (c *Cache) Set(userID int64, identity models.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(userID, &entry{identity: identity, lastAccess: c.now()})
}

// Patch applies fn to a cached identity. A missing or expired entry is left alone
// and the entry's age is not refreshed.
func (c *Cache) Patch(userID int64, fn func(*models.Identity)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(userID)
	if !ok {
		return false
	}
	if c.expired(e, c.now()) {
		c.lru.Remove(userID)
		return false
	}

	fn(&e.identity)
	return true
}

// Remove drops the entry for userID.
func (c *Cache) Remove(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(userID)
}

// Len returns the number of entries, expired ones not yet evicted included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.lastAccess) >= c.maxAge
}
