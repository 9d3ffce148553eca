package auth

import (
	"crypto/sha256"
	"encoding/base64"
)

// Digest is the stored form of a refresh token value; raw values never reach storage.
func Digest(value string) string {
	h := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
