package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxUsernameLength = 100
	minPasswordLength = 8
)

// CredentialChange holds the optional fields of a profile update. Nil means unchanged.
type CredentialChange struct {
	Username       *string
	Email          *string
	NewPassword    *string
	RepeatPassword *string
	// Password is the current password, required when Email or NewPassword is set.
	Password *string
}

func (c CredentialChange) sensitive() bool {
	return c.Email != nil || c.NewPassword != nil
}

// Validate checks field formats without touching any store.
func (c CredentialChange) Validate() error {
	if c.Username == nil && c.Email == nil && c.NewPassword == nil {
		return &ValidationError{Message: "Nothing to update"}
	}

	if c.Username != nil {
		n := utf8.RuneCountInString(*c.Username)
		if n == 0 {
			return &ValidationError{Field: "username", Message: "Username must not be empty"}
		}
		if n > maxUsernameLength {
			return &ValidationError{Field: "username", Message: fmt.Sprintf("Max username length is %d", maxUsernameLength)}
		}
	}

	if c.Email != nil && !validEmail(*c.Email) {
		return &ValidationError{Field: "email", Message: "Invalid email"}
	}

	if c.NewPassword != nil {
		if len(*c.NewPassword) < minPasswordLength || len(*c.NewPassword) > MaxPasswordLength {
			return &ValidationError{
				Field:   "newPassword",
				Message: fmt.Sprintf("Password must be between %d and %d characters long", minPasswordLength, MaxPasswordLength),
			}
		}
		if c.RepeatPassword == nil || *c.RepeatPassword != *c.NewPassword {
			return &ValidationError{Field: "newPassword", Message: "Passwords did not match"}
		}
	}

	return nil
}

// validEmail accepts a bare ASCII address with a dotted domain.
func validEmail(email string) bool {
	for _, r := range email {
		if r >= utf8.RuneSelf {
			return false
		}
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}

	domain := email[strings.LastIndex(email, "@")+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
