// Package session manages short-lived server-side sessions referenced by a signed cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	httpmiddleware "github.com/wolfeidau/mangawatch/internal/http"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
)

const (
	DefaultCookieName = "sess"
	DefaultTTL        = 7 * 24 * time.Hour

	MinSecretLength = 32
	touchInterval   = time.Minute
)

// Config holds the session cookie settings.
type Config struct {
	CookieName string
	Secret     []byte
	TTL        time.Duration
	Secure     bool
}

// Manager loads, creates and rotates sessions on top of a store.SessionStore.
type Manager struct {
	store store.SessionStore
	cfg   Config
	now   func() time.Time
}

// NewManager creates a session manager. The secret must be at least 32 bytes.
func NewManager(st store.SessionStore, cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Manager{store: st, cfg: cfg, now: time.Now}, nil
}

// Load returns the session referenced by the request cookie. A missing, tampered,
// unknown or expired cookie yields a fresh anonymous session that is not yet persisted.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.newSession(r, 0), nil
	}

	id, err := verify(m.cfg.Secret, cookie.Value)
	if err != nil {
		log.Debug().Msg("Ignoring invalid session cookie")
		return m.newSession(r, 0), nil
	}

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrSessionExpired) {
			return m.newSession(r, 0), nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return sess, nil
}

// Regenerate replaces the session with one under a new id, carrying over the user binding.
// The old id is deleted from the store.
func (m *Manager) Regenerate(ctx context.Context, sess *models.Session) (*models.Session, error) {
	if sess.Persisted {
		if err := m.store.Delete(ctx, sess.SessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}
	}

	fresh := m.newSessionFrom(sess)
	if err := m.store.Create(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	fresh.Persisted = true

	log.Debug().Int64("user_id", fresh.UserID).Msg("Regenerated session")

	return fresh, nil
}

// Bind attaches userID to the session, persisting it if needed.
func (m *Manager) Bind(ctx context.Context, sess *models.Session, userID int64) error {
	if !sess.Persisted {
		sess.UserID = userID
		if err := m.store.Create(ctx, sess); err != nil {
			sess.UserID = 0
			return fmt.Errorf("failed to create session: %w", err)
		}
		sess.Persisted = true
		return nil
	}

	if err := m.store.SetUser(ctx, sess.SessionID, userID); err != nil {
		return fmt.Errorf("failed to bind session: %w", err)
	}
	sess.UserID = userID
	return nil
}

// Unbind clears the user binding, leaving the session anonymous.
func (m *Manager) Unbind(ctx context.Context, sess *models.Session) error {
	if sess.Persisted {
		if err := m.store.SetUser(ctx, sess.SessionID, 0); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			return fmt.Errorf("failed to unbind session: %w", err)
		}
	}
	sess.UserID = 0
	return nil
}

// Destroy deletes the session. Destroying an unknown session is not an error.
func (m *Manager) Destroy(ctx context.Context, sess *models.Session) error {
	if sess.Persisted {
		if err := m.store.Delete(ctx, sess.SessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	sess.UserID = 0
	sess.Persisted = false
	return nil
}

// PurgeUser deletes every session bound to userID.
func (m *Manager) PurgeUser(ctx context.Context, userID int64) (int, error) {
	count, err := m.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return count, nil
}

// Touch slides the expiry of a persisted session. Sessions used within the last minute are
// left alone; touched reports whether the expiry moved and the cookie should be rewritten.
func (m *Manager) Touch(ctx context.Context, sess *models.Session) (touched bool, err error) {
	if !sess.Persisted {
		return false, nil
	}

	now := m.now()
	if now.Sub(sess.LastUsedAt) < touchInterval {
		return false, nil
	}

	expiresAt := now.Add(m.cfg.TTL)
	if err := m.store.Touch(ctx, sess.SessionID, expiresAt); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to touch session: %w", err)
	}

	sess.LastUsedAt = now
	sess.ExpiresAt = expiresAt
	return true, nil
}

// SetCookie writes the signed session cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, sess *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sign(m.cfg.Secret, sess.SessionID),
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m *Manager) newSession(r *http.Request, userID int64) *models.Session {
	now := m.now()
	sess := &models.Session{
		SessionID:  mustNewID(),
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.TTL),
		LastUsedAt: now,
	}
	if r != nil {
		sess.UserAgent = r.UserAgent()
		sess.IPAddress = httpmiddleware.ClientIPFromContext(r.Context())
	}
	return sess
}

func (m *Manager) newSessionFrom(old *models.Session) *models.Session {
	sess := m.newSession(nil, old.UserID)
	sess.UserAgent = old.UserAgent
	sess.IPAddress = old.IPAddress
	return sess
}

func mustNewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
