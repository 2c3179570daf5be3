// Package rememberme implements the rotating remember-me token: its cookie encoding,
// the hashing of its secret and the issue/rotate/validate/revoke lifecycle.
package rememberme

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const separator = ";"

// ErrMalformedToken is returned when a cookie value cannot be decoded into a token.
var ErrMalformedToken = errors.New("malformed remember me token")

// Token is the decoded remember-me cookie value. UserUUID only narrows the lookup;
// it is never trusted on its own.
type Token struct {
	Lookup   string
	Secret   string
	UserUUID uuid.UUID
}

// Encode returns lookup;secret;base64(uuid).
func Encode(lookup, secret string, userUUID uuid.UUID) string {
	return lookup + separator + secret + separator + base64.StdEncoding.EncodeToString([]byte(userUUID.String()))
}

// Encode returns the cookie value for t.
func (t Token) Encode() string {
	return Encode(t.Lookup, t.Secret, t.UserUUID)
}

// Decode parses a cookie value produced by Encode. Anything else yields ErrMalformedToken.
func Decode(value string) (Token, error) {
	parts := strings.SplitN(value, separator, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Token{}, ErrMalformedToken
	}

	raw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return Token{}, ErrMalformedToken
	}

	userUUID, err := uuid.Parse(string(raw))
	if err != nil {
		return Token{}, ErrMalformedToken
	}

	return Token{Lookup: parts[0], Secret: parts[1], UserUUID: userUUID}, nil
}
