// Package auth drives login, remember-me reauthentication, logout and credential changes
// on top of sessions, rotating remember-me tokens, the identity cache and the rate limiter.
package auth

import (
	"net/http"
	"net/url"
	"time"

	"github.com/wolfeidau/mangawatch/internal/identity"
	"github.com/wolfeidau/mangawatch/internal/ratelimit"
	"github.com/wolfeidau/mangawatch/internal/rememberme"
	"github.com/wolfeidau/mangawatch/internal/session"
	"github.com/wolfeidau/mangawatch/internal/store"
	"github.com/wolfeidau/mangawatch/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultAuthCookieName = "auth"

	// MaxPasswordLength is the bcrypt input limit in bytes.
	MaxPasswordLength = 72
)

// Config holds the remember-me cookie settings.
type Config struct {
	AuthCookieName string
	SecureCookies  bool
}

// Core is the authentication state machine. It is safe for concurrent use.
type Core struct {
	users    store.UserStore
	tokens   *rememberme.Tokens
	sessions *session.Manager
	cache    *identity.Cache
	limiter  ratelimit.Limiter
	cfg      Config
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// NewCore creates the authentication core from its collaborators.
func NewCore(
	users store.UserStore,
	tokens *rememberme.Tokens,
	sessions *session.Manager,
	cache *identity.Cache,
	limiter ratelimit.Limiter,
	cfg Config,
) *Core {
	if cfg.AuthCookieName == "" {
		cfg.AuthCookieName = DefaultAuthCookieName
	}

	return &Core{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		cache:    cache,
		limiter:  limiter,
		cfg:      cfg,
		metrics:  telemetry.GetMetrics(),
		tracer:   otel.Tracer("github.com/wolfeidau/mangawatch/internal/auth"),
	}
}

// readAuthCookie returns the decoded remember-me cookie. present is false when there is no cookie at all.
func (c *Core) readAuthCookie(r *http.Request) (tok rememberme.Token, present bool, err error) {
	cookie, err := r.Cookie(c.cfg.AuthCookieName)
	if err != nil || cookie.Value == "" {
		return rememberme.Token{}, false, nil
	}

	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return rememberme.Token{}, true, ErrMalformedToken
	}

	tok, err = rememberme.Decode(value)
	return tok, true, err
}

// setAuthCookie writes the remember-me cookie. The value is query escaped since it contains ';'.
func (c *Core) setAuthCookie(w http.ResponseWriter, issued *rememberme.Issued) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.AuthCookieName,
		Value:    url.QueryEscape(issued.Value()),
		Path:     "/",
		Expires:  issued.ExpiresAt,
		HttpOnly: true,
		Secure:   c.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c *Core) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.AuthCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
