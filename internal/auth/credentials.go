package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/rememberme"
	"github.com/wolfeidau/mangawatch/internal/store"
)

// ChangeCredentials updates the username, email and/or password of the user bound to sess.
//
// Email and password changes need the current password. They also regenerate the session id
// (sess is updated in place) and rotate the presented remember-me token; a password change
// additionally revokes every other remember-me token of the account.
func (c *Core) ChangeCredentials(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *models.Session, change CredentialChange) (*models.Identity, error) {
	if sess == nil || !sess.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	if change.sensitive() && (change.Password == nil || *change.Password == "") {
		field := "email"
		if change.Email == nil {
			field = "newPassword"
		}
		return nil, &AuthorizationRequiredError{Field: field}
	}

	if err := change.Validate(); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "auth.ChangeCredentials")
	defer span.End()

	logger := zerolog.Ctx(ctx)
	userID := sess.UserID

	if change.sensitive() {
		if len(*change.Password) > MaxPasswordLength {
			return nil, ErrInvalidCredentials
		}
		if _, err := c.users.VerifyPasswordByID(ctx, userID, *change.Password); err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, storageError("verify password", err)
		}
	}

	user, err := c.users.Update(ctx, userID, store.UserUpdate{
		Username: change.Username,
		Email:    change.Email,
		Password: change.NewPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmailInUse):
			return nil, ErrEmailInUse
		case errors.Is(err, store.ErrUserNotFound):
			return nil, ErrNotAuthenticated
		default:
			return nil, storageError("update user", err)
		}
	}

	ident := user.Identity()
	c.cache.Patch(userID, func(cached *models.Identity) {
		cached.Username = ident.Username
	})

	if change.sensitive() {
		if err := c.refreshCredentials(ctx, w, r, sess, user, change.NewPassword != nil); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Int64("user_id", userID).
		Bool("username", change.Username != nil).
		Bool("email", change.Email != nil).
		Bool("password", change.NewPassword != nil).
		Msg("Credentials changed")

	return &ident, nil
}

// refreshCredentials regenerates the session and rotates the presented remember-me token
// after a sensitive change.
func (c *Core) refreshCredentials(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *models.Session, user *models.User, passwordChanged bool) error {
	fresh, err := c.sessions.Regenerate(ctx, sess)
	if err != nil {
		return storageError("regenerate session", err)
	}
	c.metrics.SessionsRegeneratedTotal.Add(ctx, 1)
	*sess = *fresh
	c.sessions.SetCookie(w, sess)

	keepLookup := ""
	tok, present, err := c.presentedToken(ctx, r)
	switch {
	case !present:
	case err != nil:
		c.clearAuthCookie(w)
	default:
		rotated, err := c.tokens.Rotate(ctx, user.UserID, user.UUID, tok.Lookup)
		switch {
		case err == nil:
			c.setAuthCookie(w, rotated)
			keepLookup = tok.Lookup
		case errors.Is(err, rememberme.ErrTokenNotFound):
			c.clearAuthCookie(w)
		default:
			return storageError("rotate token", err)
		}
	}

	if !passwordChanged {
		return nil
	}

	var revoked int
	if keepLookup != "" {
		revoked, err = c.tokens.RevokeOthers(ctx, user.UserID, keepLookup)
	} else {
		revoked, err = c.tokens.RevokeAll(ctx, user.UserID)
	}
	if err != nil {
		return storageError("revoke tokens", err)
	}

	zerolog.Ctx(ctx).Debug().Int64("user_id", user.UserID).Int("tokens_revoked", revoked).Msg("Revoked other remember me tokens")
	return nil
}
