// Package oauth implements the OAuth 2.1 authorization-code + PKCE flow
// and refresh-token rotation: TokenStore and OAuthServer from spec.md
// 4.7. The atomic single-use consumption pattern is grounded on the
// teacher's database.ConsumeOIDCState (load-and-delete) in
// internal/plugins/auth/oidc.go, generalized from CSRF state to
// authorization codes and from one-shot login state to rotating refresh
// tokens.
package oauth

import (
	"sync"
	"time"
)

// AuthCode is a single-use record, per spec.md 3's Authorization code.
type AuthCode struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeChallenge string
	Subject      string
	Scope        string
	State        string
	ExpiresAt    time.Time
}

func (c AuthCode) expired() bool { return time.Now().After(c.ExpiresAt) }

// RefreshToken is an opaque, rotating record per spec.md 3.
type RefreshToken struct {
	Token     string
	ClientID  string
	Subject   string
	Scope     string
	ExpiresAt time.Time
}

func (t RefreshToken) expired() bool { return time.Now().After(t.ExpiresAt) }

// Store holds authorization codes and refresh tokens in memory. A single
// mutex guards both maps — spec.md 5 explicitly accepts this ("a single
// mutex is sufficient given expected rates") rather than finer-grained
// locking.
type Store struct {
	mu     sync.Mutex
	codes  map[string]AuthCode
	tokens map[string]RefreshToken
}

func NewStore() *Store {
	return &Store{
		codes:  make(map[string]AuthCode),
		tokens: make(map[string]RefreshToken),
	}
}

func (s *Store) PutCode(c AuthCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.Code] = c
}

// ConsumeCode atomically removes and returns the code if present and
// unexpired — it is removed even when the caller subsequently finds the
// PKCE verifier doesn't match, per spec.md 3's "consumption removes it
// even on PKCE failure."
func (s *Store) ConsumeCode(code string) (AuthCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return AuthCode{}, false
	}
	delete(s.codes, code)
	if c.expired() {
		return AuthCode{}, false
	}
	return c, true
}

func (s *Store) PutRefreshToken(t RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = t
}

// RotateRefreshToken atomically removes the presented token (so a replay
// of an already-rotated token fails) and, if it was valid, returns it so
// the caller can mint its successor.
func (s *Store) RotateRefreshToken(token string) (RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	delete(s.tokens, token)
	if !ok || t.expired() {
		return RefreshToken{}, false
	}
	return t, true
}
