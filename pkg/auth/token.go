package auth

import (
	"crypto/rand"
	"encoding/base64"
)

// NewSessionToken returns a URL-safe session token with 256 bits of
// entropy from the platform CSPRNG.
func NewSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
