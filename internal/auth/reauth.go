package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/mangawatch/internal/http"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/ratelimit"
	"github.com/wolfeidau/mangawatch/internal/rememberme"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Reauthenticate turns a remember-me cookie into an authenticated session for a request whose
// session carries no user. It returns the identity (nil when the request stays anonymous) and the
// session the request should continue with.
//
// On a token whose secret no longer matches, every token and session of the owner is revoked.
func (c *Core) Reauthenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *models.Session) (*models.Identity, *models.Session, error) {
	ident, sess, _, err := c.reauthenticate(ctx, w, r, sess)
	return ident, sess, err
}

// reauthenticate also returns the rotated token, which replaces the request's auth cookie
// for the remainder of the request.
func (c *Core) reauthenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *models.Session) (*models.Identity, *models.Session, *rememberme.Token, error) {
	tok, present, err := c.readAuthCookie(r)
	if !present {
		return nil, sess, nil, nil
	}
	if err != nil {
		c.reauthOutcome(ctx, "malformed")
		c.clearAuthCookie(w)
		return nil, sess, nil, nil
	}

	ctx, span := c.tracer.Start(ctx, "auth.Reauthenticate")
	defer span.End()

	key := ratelimit.TokenKey(httpmiddleware.ClientIPFromContext(ctx))
	if err := c.checkLimit(ctx, key); err != nil {
		return nil, sess, nil, err
	}

	user, err := c.tokens.Validate(ctx, tok)
	if err != nil {
		var mismatch *rememberme.MismatchError
		switch {
		case errors.Is(err, rememberme.ErrTokenNotFound):
			c.reauthOutcome(ctx, "not_found")
			c.clearAuthCookie(w)
			return nil, sess, nil, nil
		case errors.As(err, &mismatch):
			return nil, sess, nil, c.handleMismatch(ctx, w, mismatch.UserID)
		default:
			return nil, sess, nil, storageError("validate token", err)
		}
	}

	fresh, err := c.bindFreshSession(ctx, sess, user.UserID)
	if err != nil {
		return nil, sess, nil, err
	}

	rotated, err := c.tokens.Rotate(ctx, user.UserID, user.UUID, tok.Lookup)
	if err != nil {
		c.destroyQuietly(ctx, fresh)
		if errors.Is(err, rememberme.ErrTokenNotFound) {
			// Revoked between validate and rotate.
			c.reauthOutcome(ctx, "not_found")
			c.clearAuthCookie(w)
			return nil, fresh, nil, nil
		}
		return nil, fresh, nil, storageError("rotate token", err)
	}

	c.sessions.SetCookie(w, fresh)
	c.setAuthCookie(w, rotated)

	ident := user.Identity()
	c.cache.Set(user.UserID, ident)
	c.resetLimit(ctx, key)
	c.reauthOutcome(ctx, "match")

	zerolog.Ctx(ctx).Info().Int64("user_id", user.UserID).Msg("Reauthenticated with remember me token")

	return &ident, fresh, &rotated.Token, nil
}

// handleMismatch revokes every remember-me token and session of userID.
func (c *Core) handleMismatch(ctx context.Context, w http.ResponseWriter, userID int64) error {
	c.reauthOutcome(ctx, "mismatch")
	c.metrics.TheftSuspectedTotal.Add(ctx, 1)
	c.clearAuthCookie(w)
	c.cache.Remove(userID)

	tokens, err := c.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return storageError("revoke tokens", err)
	}

	sessions, err := c.sessions.PurgeUser(ctx, userID)
	if err != nil {
		return storageError("purge sessions", err)
	}
	c.metrics.SessionsPurgedTotal.Add(ctx, int64(sessions))

	zerolog.Ctx(ctx).Warn().
		Int64("user_id", userID).
		Int("tokens_revoked", tokens).
		Int("sessions_purged", sessions).
		Msg("Stale remember me token presented, revoked all tokens and sessions")

	return nil
}

func (c *Core) reauthOutcome(ctx context.Context, outcome string) {
	c.metrics.ReauthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
