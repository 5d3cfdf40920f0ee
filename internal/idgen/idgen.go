// Package idgen generates high-entropy opaque identifiers for sessions,
// authorization codes, refresh tokens, and JWT ids — the "opaque string
// (cryptographically random, >=128 bits)" requirement repeated throughout
// the data model.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
)

// New returns a URL-safe, unpadded base64 encoding of n random bytes.
// n=16 yields 128 bits of entropy, the data model's stated minimum.
func New(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// SessionID returns a 256-bit opaque session identifier.
func SessionID() string { return New(32) }

// AuthCode returns a 192-bit opaque authorization code.
func AuthCode() string { return New(24) }

// RefreshToken returns a 256-bit opaque refresh token.
func RefreshToken() string { return New(32) }

// JTI returns a 128-bit JWT id.
func JTI() string { return New(16) }
