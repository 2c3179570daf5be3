package rememberme

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret returns the lowercase hex SHA-256 of secret, the only form of a secret that is persisted.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretMatches reports whether secret hashes to hashed, comparing in constant time.
func SecretMatches(secret, hashed string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSecret(secret)), []byte(hashed)) == 1
}
