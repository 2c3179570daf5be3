package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	httpmiddleware "github.com/wolfeidau/mangawatch/internal/http"
	"github.com/wolfeidau/mangawatch/internal/identity"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/ratelimit"
	"github.com/wolfeidau/mangawatch/internal/rememberme"
	"github.com/wolfeidau/mangawatch/internal/session"
	"github.com/wolfeidau/mangawatch/internal/store"
	"github.com/wolfeidau/mangawatch/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "reader@example.com"
	testPassword = "correct horse battery"
)

var testSessionSecret = []byte("test-secret-key-min-32-bytes-long")

// spyUserStore counts every call reaching the user store.
type spyUserStore struct {
	store.UserStore
	calls atomic.Int64
}

func (s *spyUserStore) VerifyPassword(ctx context.Context, email, password string) (*models.User, error) {
	s.calls.Add(1)
	return s.UserStore.VerifyPassword(ctx, email, password)
}

func (s *spyUserStore) VerifyPasswordByID(ctx context.Context, userID int64, password string) (*models.User, error) {
	s.calls.Add(1)
	return s.UserStore.VerifyPasswordByID(ctx, userID, password)
}

func (s *spyUserStore) Get(ctx context.Context, userID int64) (*models.User, error) {
	s.calls.Add(1)
	return s.UserStore.Get(ctx, userID)
}

func (s *spyUserStore) Update(ctx context.Context, userID int64, update store.UserUpdate) (*models.User, error) {
	s.calls.Add(1)
	return s.UserStore.Update(ctx, userID, update)
}

// faultyTokenStore fails selected writes.
type faultyTokenStore struct {
	*memory.TokenStore
	failInsert atomic.Bool
	failUpdate atomic.Bool
}

var errStoreDown = errors.New("store down")

func (f *faultyTokenStore) Insert(ctx context.Context, token *models.RememberToken) error {
	if f.failInsert.Load() {
		return errStoreDown
	}
	return f.TokenStore.Insert(ctx, token)
}

func (f *faultyTokenStore) UpdateHash(ctx context.Context, userID int64, lookup, hashedSecret string) (time.Time, error) {
	if f.failUpdate.Load() {
		return time.Time{}, errStoreDown
	}
	return f.TokenStore.UpdateHash(ctx, userID, lookup, hashedSecret)
}

type harness struct {
	core     *Core
	users    *spyUserStore
	tokens   *faultyTokenStore
	sessions *memory.SessionStore
	cache    *identity.Cache
	user     *models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	memUsers := memory.NewUserStore(bcrypt.MinCost)
	user, err := memUsers.Create(context.Background(), &models.User{Username: "reader", Email: testEmail}, testPassword)
	require.NoError(t, err)

	users := &spyUserStore{UserStore: memUsers}
	tokenStore := &faultyTokenStore{TokenStore: memory.NewTokenStore(memUsers)}
	sessionStore := memory.NewSessionStore()

	sessions, err := session.NewManager(sessionStore, session.Config{Secret: testSessionSecret})
	require.NoError(t, err)

	cache, err := identity.New(identity.DefaultCapacity)
	require.NoError(t, err)

	core := NewCore(
		users,
		rememberme.New(tokenStore),
		sessions,
		cache,
		ratelimit.NewMemoryLimiter(ratelimit.DefaultPolicy()),
		Config{},
	)

	return &harness{
		core:     core,
		users:    users,
		tokens:   tokenStore,
		sessions: sessionStore,
		cache:    cache,
		user:     user,
	}
}

// browser keeps the cookies a client would send back.
type browser struct {
	ip  string
	jar map[string]string
}

func newBrowser(ip string) *browser {
	return &browser{ip: ip, jar: map[string]string{}}
}

func (b *browser) clone() *browser {
	c := newBrowser(b.ip)
	for k, v := range b.jar {
		c.jar[k] = v
	}
	return c
}

func (b *browser) request(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	for name, value := range b.jar {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return r.WithContext(httpmiddleware.WithClientIP(r.Context(), b.ip))
}

func (b *browser) absorb(rec *httptest.ResponseRecorder) {
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.jar, c.Name)
			continue
		}
		b.jar[c.Name] = c.Value
	}
}

func (b *browser) authToken(t *testing.T) rememberme.Token {
	t.Helper()

	value, ok := b.jar[DefaultAuthCookieName]
	require.True(t, ok, "auth cookie missing")

	raw, err := url.QueryUnescape(value)
	require.NoError(t, err)

	tok, err := rememberme.Decode(raw)
	require.NoError(t, err)
	return tok
}

func (h *harness) login(t *testing.T, b *browser, rememberMe bool) *LoginResult {
	t.Helper()

	rec := httptest.NewRecorder()
	r := b.request(http.MethodPost, "/api/login")
	res, err := h.core.Login(r.Context(), rec, r, LoginRequest{Email: testEmail, Password: testPassword, RememberMe: rememberMe})
	require.NoError(t, err)
	b.absorb(rec)
	return res
}

// visit runs one request through Middleware and returns what the handler saw.
func (h *harness) visit(t *testing.T, b *browser) (*models.Session, *models.Identity, *httptest.ResponseRecorder) {
	t.Helper()

	var (
		sess  *models.Session
		ident *models.Identity
	)
	handler := h.core.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		var throttled *ThrottledError
		if errors.As(err, &throttled) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		sess, ok = session.FromContext(r.Context())
		require.True(t, ok)

		var err error
		ident, err = h.core.CurrentIdentity(r.Context(), sess)
		require.NoError(t, err)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, b.request(http.MethodGet, "/api/identity"))
	b.absorb(rec)
	return sess, ident, rec
}

func cookieNames(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}
