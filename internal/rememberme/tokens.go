package rememberme

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/store"
)

const (
	// DefaultTTL is how long an issued token stays valid. Rotation does not extend it.
	DefaultTTL = 30 * 24 * time.Hour

	secretBytes = 33
	lookupBytes = 9
)

var (
	// ErrTokenNotFound means no live token exists for the (uuid, lookup) pair.
	ErrTokenNotFound = store.ErrTokenNotFound

	// ErrTokenMismatch means the token exists but the presented secret is not the current one.
	ErrTokenMismatch = errors.New("remember me token mismatch")
)

// MismatchError carries the owner of a token whose secret did not match.
// It matches ErrTokenMismatch with errors.Is.
type MismatchError struct {
	UserID int64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("remember me token mismatch for user %d", e.UserID)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrTokenMismatch
}

// Issued is a freshly issued or rotated token ready to be written to the auth cookie.
type Issued struct {
	Token     Token
	ExpiresAt time.Time
}

// Value returns the cookie value.
func (i *Issued) Value() string {
	return i.Token.Encode()
}

// Tokens manages the remember-me token lifecycle on top of a store.TokenStore.
type Tokens struct {
	store  store.TokenStore
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// Option configures Tokens.
type Option func(*Tokens)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tokens) { t.ttl = ttl }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tokens) { t.now = now }
}

// WithRandom overrides crypto/rand as the source of lookups and secrets.
func WithRandom(r io.Reader) Option {
	return func(t *Tokens) { t.random = r }
}

// New creates a token manager.
func New(st store.TokenStore, opts ...Option) *Tokens {
	t := &Tokens{
		store:  st,
		ttl:    DefaultTTL,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue creates and persists a new token for the user.
func (t *Tokens) Issue(ctx context.Context, userID int64, userUUID uuid.UUID) (*Issued, error) {
	lookup, err := t.randomString(lookupBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate lookup: %w", err)
	}
	secret, err := t.randomString(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	// Postgres keeps microseconds, so truncate to keep cookie and row expiry identical.
	expiresAt := t.now().Add(t.ttl).UTC().Truncate(time.Microsecond)
	err = t.store.Insert(ctx, &models.RememberToken{
		UserID:       userID,
		Lookup:       lookup,
		HashedSecret: HashSecret(secret),
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert remember me token: %w", err)
	}

	log.Debug().Int64("user_id", userID).Msg("Issued remember me token")

	return &Issued{
		Token:     Token{Lookup: lookup, Secret: secret, UserUUID: userUUID},
		ExpiresAt: expiresAt,
	}, nil
}

// Rotate replaces the secret of the user's token with lookup, keeping lookup and expiry.
// Returns ErrTokenNotFound when there is nothing to rotate.
func (t *Tokens) Rotate(ctx context.Context, userID int64, userUUID uuid.UUID, lookup string) (*Issued, error) {
	secret, err := t.randomString(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	expiresAt, err := t.store.UpdateHash(ctx, userID, lookup, HashSecret(secret))
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to rotate remember me token: %w", err)
	}

	log.Debug().Int64("user_id", userID).Msg("Rotated remember me token")

	return &Issued{
		Token:     Token{Lookup: lookup, Secret: secret, UserUUID: userUUID},
		ExpiresAt: expiresAt,
	}, nil
}

// Validate resolves a presented token to its owner.
// It returns ErrTokenNotFound when no live token exists for (uuid, lookup) and a
// *MismatchError when one exists but the secret is stale.
func (t *Tokens) Validate(ctx context.Context, tok Token) (*models.User, error) {
	found, err := t.store.FindByUUIDLookup(ctx, tok.UserUUID, tok.Lookup)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to find remember me token: %w", err)
	}

	if !SecretMatches(tok.Secret, found.Token.HashedSecret) {
		return nil, &MismatchError{UserID: found.Token.UserID}
	}

	return &found.User, nil
}

// RevokeOne deletes the user's token matching tok exactly. A non-matching token is a no-op.
func (t *Tokens) RevokeOne(ctx context.Context, userID int64, tok Token) error {
	deleted, err := t.store.Delete(ctx, userID, tok.Lookup, HashSecret(tok.Secret))
	if err != nil {
		return fmt.Errorf("failed to delete remember me token: %w", err)
	}

	log.Debug().Int64("user_id", userID).Bool("deleted", deleted).Msg("Revoked remember me token")
	return nil
}

// RevokeAll deletes every token of the user.
func (t *Tokens) RevokeAll(ctx context.Context, userID int64) (int, error) {
	count, err := t.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete remember me tokens: %w", err)
	}
	return count, nil
}

// RevokeOthers deletes every token of the user except keepLookup.
func (t *Tokens) RevokeOthers(ctx context.Context, userID int64, keepLookup string) (int, error) {
	count, err := t.store.DeleteByUserExcept(ctx, userID, keepLookup)
	if err != nil {
		return 0, fmt.Errorf("failed to delete remember me tokens: %w", err)
	}
	return count, nil
}

func (t *Tokens) randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.random, buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
