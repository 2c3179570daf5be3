package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/mangawatch/internal/rememberme"
	"github.com/wolfeidau/mangawatch/internal/store"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotAuthenticated is returned by operations that need a bound user.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrEmailInUse is returned when a credential change picks another account's email.
	ErrEmailInUse = store.ErrEmailInUse

	// ErrMalformedToken and ErrTokenMismatch never leave the core; they are handled as anonymous.
	ErrMalformedToken = rememberme.ErrMalformedToken
	ErrTokenMismatch  = rememberme.ErrTokenMismatch
)

// ThrottledError is returned when the rate limiter rejects an attempt.
type ThrottledError struct {
	NextAllowedAt time.Time
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many attempts, next allowed at %s", e.NextAllowedAt.Format(time.RFC3339))
}

// StorageError wraps a persistence failure. Its message never includes the cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage unavailable"
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// AuthorizationRequiredError is returned when an email or password change lacks the current password.
type AuthorizationRequiredError struct {
	Field string
}

func (e *AuthorizationRequiredError) Error() string {
	return "Password required for modifying " + e.Field
}

// ValidationError names the offending field of a credential change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
