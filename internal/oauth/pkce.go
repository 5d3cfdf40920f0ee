package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// ChallengeFromVerifier computes BASE64URL(SHA256(verifier)) per RFC 7636,
// S256 only (spec.md 6 and 8 both pin S256 exclusively).
func ChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE performs a timing-safe comparison between the derived
// challenge and the stored one, per spec.md 4.7/8's "Comparison MUST be
// timing-safe" invariant.
func VerifyPKCE(verifier, storedChallenge string) bool {
	derived := ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(storedChallenge)) == 1
}
