package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/mangawatch/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestCache(t *testing.T, capacity int) (*Cache, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := New(capacity, WithClock(clock.Now))
	require.NoError(t, err)
	return c, clock
}

func testIdentity(userID int64, username string) models.Identity {
	return models.Identity{UserID: userID, UUID: uuid.New(), Username: username}
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t, DefaultCapacity)

	_, ok := c.Get(1)
	require.False(t, ok)

	want := testIdentity(1, "alice")
	c.Set(1, want)

	got, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, want, got)
	require.Equal(t, 1, c.Len())

	c.Remove(1)
	_, ok = c.Get(1)
	require.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(t, 2)

	c.Set(1, testIdentity(1, "alice"))
	c.Set(2, testIdentity(2, "bob"))

	_, ok := c.Get(1)
	require.True(t, ok)

	c.Set(3, testIdentity(3, "carol"))
	require.Equal(t, 2, c.Len())

	_, ok = c.Get(2)
	require.False(t, ok, "bob was least recently used")
	_, ok = c.Get(1)
	require.True(t, ok)
	_, ok = c.Get(3)
	require.True(t, ok)
}

func TestCache_SlidingExpiry(t *testing.T) {
	c, clock := newTestCache(t, DefaultCapacity)
	c.Set(1, testIdentity(1, "alice"))

	t.Run("access extends life", func(t *testing.T) {
		clock.Advance(20 * time.Hour)
		_, ok := c.Get(1)
		require.True(t, ok)

		clock.Advance(20 * time.Hour)
		_, ok = c.Get(1)
		require.True(t, ok)
	})

	t.Run("expires after max age idle", func(t *testing.T) {
		clock.Advance(DefaultMaxAge)
		_, ok := c.Get(1)
		require.False(t, ok)
		require.Equal(t, 0, c.Len())
	})
}

func TestCache_Patch(t *testing.T) {
	c, clock := newTestCache(t, DefaultCapacity)

	t.Run("miss is a no-op", func(t *testing.T) {
		patched := c.Patch(7, func(id *models.Identity) { id.Username = "ghost" })
		require.False(t, patched)
		require.Equal(t, 0, c.Len())
	})

	t.Run("hit updates fields", func(t *testing.T) {
		c.Set(1, testIdentity(1, "alice"))

		patched := c.Patch(1, func(id *models.Identity) { id.Username = "alicia" })
		require.True(t, patched)

		got, ok := c.Get(1)
		require.True(t, ok)
		require.Equal(t, "alicia", got.Username)
	})

	t.Run("patch does not refresh age", func(t *testing.T) {
		c.Set(2, testIdentity(2, "bob"))

		clock.Advance(DefaultMaxAge - time.Minute)
		require.True(t, c.Patch(2, func(id *models.Identity) { id.Theme = 1 }))

		clock.Advance(time.Minute)
		_, ok := c.Get(2)
		require.False(t, ok)
	})
}
