package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/mangawatch/internal/http"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/ratelimit"
	"github.com/wolfeidau/mangawatch/internal/session"
	"github.com/wolfeidau/mangawatch/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LoginRequest carries the submitted credentials.
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
}

// LoginResult describes a successful login.
type LoginResult struct {
	Identity models.Identity
	Session  *models.Session
	// RememberMe is true when a remember-me cookie was set.
	RememberMe bool
}

// Login verifies the credentials, binds the user to a fresh session and optionally issues a remember-me token.
func (c *Core) Login(ctx context.Context, w http.ResponseWriter, r *http.Request, req LoginRequest) (*LoginResult, error) {
	ctx, span := c.tracer.Start(ctx, "auth.Login")
	defer span.End()

	logger := zerolog.Ctx(ctx)
	c.metrics.LoginAttemptsTotal.Add(ctx, 1)

	ip := httpmiddleware.ClientIPFromContext(ctx)
	if err := c.checkLimit(ctx, ratelimit.LoginKey(ip)); err != nil {
		return nil, err
	}

	if req.Email == "" || req.Password == "" || len(req.Password) > MaxPasswordLength {
		c.metrics.LoginFailuresTotal.Add(ctx, 1)
		return nil, ErrInvalidCredentials
	}

	user, err := c.users.VerifyPassword(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.metrics.LoginFailuresTotal.Add(ctx, 1)
			logger.Info().Str("client_ip", ip).Msg("Login rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("verify password", err)
	}

	sess, err := c.requestSession(ctx, r)
	if err != nil {
		return nil, err
	}

	fresh, err := c.bindFreshSession(ctx, sess, user.UserID)
	if err != nil {
		return nil, err
	}

	ident := user.Identity()
	c.cache.Set(user.UserID, ident)
	c.resetLimit(ctx, ratelimit.LoginKey(ip))

	result := &LoginResult{Identity: ident, Session: fresh}

	if req.RememberMe {
		issued, err := c.tokens.Issue(ctx, user.UserID, user.UUID)
		if err != nil {
			logger.Warn().Err(err).Int64("user_id", user.UserID).Msg("Failed to issue remember me token, continuing without it")
		} else {
			c.setAuthCookie(w, issued)
			c.metrics.TokensIssuedTotal.Add(ctx, 1)
			result.RememberMe = true
		}
	}

	c.sessions.SetCookie(w, fresh)
	logger.Info().Int64("user_id", user.UserID).Bool("remember_me", result.RememberMe).Msg("User logged in")

	return result, nil
}

// requestSession returns the session attached by Middleware, loading it when absent.
func (c *Core) requestSession(ctx context.Context, r *http.Request) (*models.Session, error) {
	if sess, ok := session.FromContext(ctx); ok {
		return sess, nil
	}

	sess, err := c.sessions.Load(ctx, r)
	if err != nil {
		return nil, storageError("load session", err)
	}
	return sess, nil
}

// bindFreshSession regenerates sess and binds userID to the new id.
// The new session is destroyed again when binding fails.
func (c *Core) bindFreshSession(ctx context.Context, sess *models.Session, userID int64) (*models.Session, error) {
	fresh, err := c.sessions.Regenerate(ctx, sess)
	if err != nil {
		return nil, storageError("regenerate session", err)
	}

	if err := c.sessions.Bind(ctx, fresh, userID); err != nil {
		c.destroyQuietly(ctx, fresh)
		return nil, storageError("bind session", err)
	}

	c.metrics.SessionsRegeneratedTotal.Add(ctx, 1)
	return fresh, nil
}

func (c *Core) destroyQuietly(ctx context.Context, sess *models.Session) {
	if err := c.sessions.Destroy(ctx, sess); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to destroy session")
	}
}

func (c *Core) checkLimit(ctx context.Context, key string) error {
	decision, err := c.limiter.Check(ctx, key)
	if err != nil {
		return storageError("check rate limit", err)
	}

	if !decision.Allowed {
		c.metrics.ThrottledTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("key", keyKind(key))))
		zerolog.Ctx(ctx).Warn().Str("key", key).Time("next_allowed_at", decision.NextAllowedAt).Msg("Attempt throttled")
		return &ThrottledError{NextAllowedAt: decision.NextAllowedAt}
	}
	return nil
}

func (c *Core) resetLimit(ctx context.Context, key string) {
	if err := c.limiter.Reset(ctx, key); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to reset rate limit")
	}
}

func keyKind(key string) string {
	switch {
	case strings.HasPrefix(key, ratelimit.LoginPrefix):
		return "login"
	case strings.HasPrefix(key, ratelimit.TokenPrefix):
		return "token"
	default:
		return "other"
	}
}
