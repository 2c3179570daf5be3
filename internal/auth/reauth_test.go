package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/mangawatch/internal/rememberme"
	"github.com/wolfeidau/mangawatch/internal/session"
)

func TestReauthenticate_RotatesTokenAndSession(t *testing.T) {
	h := newHarness(t)
	b := newBrowser("198.51.100.1")

	login := h.login(t, b, true)
	before := b.authToken(t)

	// Browser restart: the session cookie is gone, the remember-me cookie survives.
	delete(b.jar, session.DefaultCookieName)

	sess, ident, rec := h.visit(t, b)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ident)
	require.Equal(t, h.user.UserID, ident.UserID)
	require.True(t, sess.IsAuthenticated())
	require.NotEqual(t, login.Session.SessionID, sess.SessionID)

	cookies := cookieNames(rec)
	require.Contains(t, cookies, session.DefaultCookieName)
	require.Contains(t, cookies, DefaultAuthCookieName)

	after := b.authToken(t)
	require.Equal(t, before.Lookup, after.Lookup)
	require.NotEqual(t, before.Secret, after.Secret)
	require.Equal(t, 1, h.tokens.Count(h.user.UserID))

	t.Run("session fast path does not touch the token", func(t *testing.T) {
		_, ident, rec := h.visit(t, b)
		require.NotNil(t, ident)
		require.NotContains(t, cookieNames(rec), DefaultAuthCookieName)
		require.Equal(t, after, b.authToken(t))
	})
}

func TestReauthenticate_StaleTokenPurgesAccount(t *testing.T) {
	h := newHarness(t)

	// Two devices logged in with remember-me.
	phone := newBrowser("198.51.100.1")
	h.login(t, phone, true)
	laptop := newBrowser("198.51.100.2")
	h.login(t, laptop, true)
	require.Equal(t, 2, h.tokens.Count(h.user.UserID))

	// An attacker copies the laptop cookie, then the laptop rotates it.
	attacker := laptop.clone()
	attacker.ip = "203.0.113.66"
	delete(attacker.jar, session.DefaultCookieName)

	delete(laptop.jar, session.DefaultCookieName)
	_, ident, _ := h.visit(t, laptop)
	require.NotNil(t, ident)

	// The attacker replays the pre-rotation value.
	sess, ident, rec := h.visit(t, attacker)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, ident)
	require.False(t, sess.IsAuthenticated())
	require.NotContains(t, attacker.jar, DefaultAuthCookieName)

	require.Equal(t, 0, h.tokens.Count(h.user.UserID))
	_, ok := h.cache.Get(h.user.UserID)
	require.False(t, ok)

	for _, b := range []*browser{phone, laptop} {
		sess, ident, _ := h.visit(t, b)
		require.Nil(t, ident)
		require.False(t, sess.IsAuthenticated())
	}
}

func TestReauthenticate_ConcurrentTabsRace(t *testing.T) {
	h := newHarness(t)
	b := newBrowser("198.51.100.1")
	h.login(t, b, true)
	delete(b.jar, session.DefaultCookieName)

	tabA := b.clone()
	tabB := b.clone()

	// Tab A wins the race and rotates the shared cookie.
	_, ident, _ := h.visit(t, tabA)
	require.NotNil(t, ident)

	// Tab B still presents the pre-rotation value and trips the stale token path.
	_, ident, _ = h.visit(t, tabB)
	require.Nil(t, ident)

	// The purge also ends tab A's fresh session and its rotated token.
	_, ident, _ = h.visit(t, tabA)
	require.Nil(t, ident)
	require.Equal(t, 0, h.tokens.Count(h.user.UserID))
}

func TestReauthenticate_UnknownLookupOnlyClearsCookie(t *testing.T) {
	h := newHarness(t)

	other := newBrowser("198.51.100.1")
	h.login(t, other, true)

	b := newBrowser("198.51.100.2")
	b.jar[DefaultAuthCookieName] = url.QueryEscape(rememberme.Encode("unknownLook", "secret", h.user.UUID))

	sess, ident, rec := h.visit(t, b)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, ident)
	require.False(t, sess.IsAuthenticated())
	require.NotContains(t, b.jar, DefaultAuthCookieName)

	require.Equal(t, 1, h.tokens.Count(h.user.UserID))
	_, ident, _ = h.visit(t, other)
	require.NotNil(t, ident)
}

func TestReauthenticate_MalformedCookie(t *testing.T) {
	h := newHarness(t)

	for _, value := range []string{"garbage", "a%3Bb", "%zz"} {
		b := newBrowser("198.51.100.3")
		b.jar[DefaultAuthCookieName] = value

		sess, ident, rec := h.visit(t, b)
		require.Equal(t, http.StatusOK, rec.Code, value)
		require.Nil(t, ident)
		require.False(t, sess.IsAuthenticated())
		require.NotContains(t, b.jar, DefaultAuthCookieName, value)
	}
	require.Zero(t, h.users.calls.Load())
}

func TestReauthenticate_RotationFailureLeavesClientAnonymous(t *testing.T) {
	h := newHarness(t)
	b := newBrowser("198.51.100.1")
	h.login(t, b, true)
	delete(b.jar, session.DefaultCookieName)
	before := b.authToken(t)

	h.tokens.failUpdate.Store(true)

	r := b.request(http.MethodGet, "/")
	rec := httptest.NewRecorder()
	sess, err := h.core.sessions.Load(r.Context(), r)
	require.NoError(t, err)

	ident, _, err := h.core.Reauthenticate(r.Context(), rec, r, sess)
	require.Nil(t, ident)

	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	require.ErrorIs(t, err, errStoreDown)
	require.Empty(t, rec.Result().Cookies(), "no cookie may be written when rotation fails")

	count, err := h.sessions.DeleteByUser(r.Context(), h.user.UserID)
	require.NoError(t, err)
	require.Equal(t, 1, count, "only the login session remains, the freshly bound one is destroyed")

	h.tokens.failUpdate.Store(false)
	_, ident, _ = h.visit(t, b)
	require.NotNil(t, ident, "the original token still works")
	require.Equal(t, before.Lookup, b.authToken(t).Lookup)
}

func TestReauthenticate_Throttled(t *testing.T) {
	h := newHarness(t)

	b := newBrowser("203.0.113.99")

	for i := 0; i < 15; i++ {
		b.jar[DefaultAuthCookieName] = url.QueryEscape(rememberme.Encode("unknownLook", "secret", h.user.UUID))
		_, _, rec := h.visit(t, b)
		require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
	}

	b.jar[DefaultAuthCookieName] = url.QueryEscape(rememberme.Encode("unknownLook", "secret", h.user.UUID))
	_, _, rec := h.visit(t, b)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
