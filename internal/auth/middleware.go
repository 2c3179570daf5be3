package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/rememberme"
	"github.com/wolfeidau/mangawatch/internal/session"
)

type (
	identityContextKey struct{}
	tokenContextKey    struct{}
)

// ErrorWriter renders an error returned by the core.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type middlewareOptions struct {
	reauthenticate bool
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareOptions)

// WithoutReauthentication loads the session but never consumes the remember-me cookie.
// Logout is routed with it.
func WithoutReauthentication() MiddlewareOption {
	return func(o *middlewareOptions) {
		o.reauthenticate = false
	}
}

// Middleware resolves the session of every request. Sessions without a user are upgraded via the
// remember-me cookie when one is present. The session and identity are stored in the request context.
func (c *Core) Middleware(onError ErrorWriter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{reauthenticate: true}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, err := c.sessions.Load(ctx, r)
			if err != nil {
				onError(w, r, storageError("load session", err))
				return
			}

			var (
				ident   *models.Identity
				rotated *rememberme.Token
			)
			switch {
			case sess.IsAuthenticated():
				touched, err := c.sessions.Touch(ctx, sess)
				if err != nil {
					zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to touch session")
				} else if touched {
					c.sessions.SetCookie(w, sess)
				}
			case o.reauthenticate:
				ident, sess, rotated, err = c.reauthenticate(ctx, w, r, sess)
				if err != nil {
					onError(w, r, err)
					return
				}
			}

			ctx = session.WithSession(ctx, sess)
			if ident != nil {
				ctx = withIdentity(ctx, ident)
			}
			if rotated != nil {
				ctx = withRotatedToken(ctx, rotated)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withIdentity(ctx context.Context, ident *models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext returns the identity resolved by Middleware during reauthentication.
// Handlers should call CurrentIdentity otherwise.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	ident, ok := ctx.Value(identityContextKey{}).(*models.Identity)
	return ident, ok && ident != nil
}

func withRotatedToken(ctx context.Context, tok *rememberme.Token) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, tok)
}

// presentedToken returns the remember-me token the client holds for this request: the one rotated
// by Middleware if reauthentication happened, otherwise the decoded auth cookie.
func (c *Core) presentedToken(ctx context.Context, r *http.Request) (tok rememberme.Token, present bool, err error) {
	if rotated, ok := ctx.Value(tokenContextKey{}).(*rememberme.Token); ok && rotated != nil {
		return *rotated, true, nil
	}
	return c.readAuthCookie(r)
}
