package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidSession is returned for a session cookie that is malformed or carries a bad signature.
var ErrInvalidSession = errors.New("invalid session cookie")

// sign returns <id>.<base64url(hmac-sha256(id))>.
func sign(secret []byte, id uuid.UUID) string {
	encoded := id.String()

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))

	return encoded + "." + base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// verify checks the signature of a cookie value produced by sign and returns the session id.
func verify(secret []byte, value string) (uuid.UUID, error) {
	encoded, sig, ok := strings.Cut(value, ".")
	if !ok {
		return uuid.Nil, ErrInvalidSession
	}

	receivedSig, err := base64.URLEncoding.DecodeString(sig)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))

	if !hmac.Equal(receivedSig, mac.Sum(nil)) {
		return uuid.Nil, ErrInvalidSession
	}

	id, err := uuid.Parse(encoded)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}

	return id, nil
}
