package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/rememberme"
)

// Logout revokes the presented remember-me token, destroys the session and clears both cookies.
// Calling it again with the same, now dead, cookies is a no-op.
func (c *Core) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *models.Session) error {
	ctx, span := c.tracer.Start(ctx, "auth.Logout")
	defer span.End()

	logger := zerolog.Ctx(ctx)
	userID := sess.UserID

	c.sessions.ClearCookie(w)
	c.clearAuthCookie(w)

	tok, present, err := c.presentedToken(ctx, r)
	if present && err == nil {
		owner := userID
		if owner == 0 {
			owner = c.tokenOwner(ctx, tok)
		}
		if owner != 0 {
			if err := c.tokens.RevokeOne(ctx, owner, tok); err != nil {
				logger.Warn().Err(err).Int64("user_id", owner).Msg("Failed to revoke remember me token")
			}
		}
		if userID == 0 {
			userID = owner
		}
	}

	if err := c.sessions.Destroy(ctx, sess); err != nil {
		return storageError("destroy session", err)
	}

	if userID != 0 {
		c.metrics.LogoutsTotal.Add(ctx, 1)
		logger.Info().Int64("user_id", userID).Msg("User logged out")
	}

	return nil
}

// tokenOwner returns the user holding a live token matching tok, or 0.
// A stale secret is ignored here rather than treated as theft.
func (c *Core) tokenOwner(ctx context.Context, tok rememberme.Token) int64 {
	user, err := c.tokens.Validate(ctx, tok)
	if err != nil {
		var mismatch *rememberme.MismatchError
		if !errors.Is(err, rememberme.ErrTokenNotFound) && !errors.As(err, &mismatch) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to resolve remember me token owner")
		}
		return 0
	}
	return user.UserID
}
