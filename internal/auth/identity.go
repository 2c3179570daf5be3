package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
)

// CurrentIdentity returns the identity bound to sess, or nil for an anonymous session.
// The identity cache is consulted first; a miss reads the user store and repopulates it.
func (c *Core) CurrentIdentity(ctx context.Context, sess *models.Session) (*models.Identity, error) {
	if sess == nil || !sess.IsAuthenticated() {
		return nil, nil
	}

	if ident, ok := c.cache.Get(sess.UserID); ok {
		c.metrics.IdentityCacheHitsTotal.Add(ctx, 1)
		return &ident, nil
	}
	c.metrics.IdentityCacheMissesTotal.Add(ctx, 1)

	user, err := c.users.Get(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			zerolog.Ctx(ctx).Warn().Int64("user_id", sess.UserID).Msg("Session bound to a missing user")
			return nil, nil
		}
		return nil, storageError("get user", err)
	}

	ident := user.Identity()
	c.cache.Set(user.UserID, ident)
	return &ident, nil
}
