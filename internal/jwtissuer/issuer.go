// Package jwtissuer signs and verifies symmetric JWT access tokens,
// grounded on the teacher's internal/plugins/auth/jwt.go JWTAuthProvider —
// generalized from that file's user/role claims to the protocol's
// sub/scope/aud claim set.
package jwtissuer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rjsadow/agentproto/internal/idgen"
)

var (
	ErrTokenExpired = errors.New("jwtissuer: token expired")
	ErrInvalidToken = errors.New("jwtissuer: invalid token")
)

// Claims is the access token's claim set, per spec.md 3's Access token
// (JWT) entry: iss, sub, aud, iat, exp, jti, scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

func (c Claims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	out := []string{}
	start := 0
	for i := 0; i <= len(c.Scope); i++ {
		if i == len(c.Scope) || c.Scope[i] == ' ' {
			if i > start {
				out = append(out, c.Scope[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// Issuer mints and verifies HS256 access JWTs. Config is injected rather
// than read from a package-level global, per the design note's "explicit
// dependency injection with a provider function."
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

func New(secret []byte, issuer, audience string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwtissuer: signing secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: secret, issuer: issuer, audience: audience, ttl: ttl}, nil
}

// Issue mints a new access token for subject/scope, returning the signed
// JWT, its jti, and its TTL in seconds (for the token endpoint's
// expires_in field).
func (i *Issuer) Issue(subject, scope string) (token string, jti string, expiresIn int64, err error) {
	now := time.Now()
	jti = idgen.JTI()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        jti,
		},
		Scope: scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", 0, fmt.Errorf("jwtissuer: sign: %w", err)
	}
	return signed, jti, int64(i.ttl.Seconds()), nil
}

// clockSkew is the tolerance spec.md 4.8 allows on exp/iat comparisons.
const clockSkew = 60 * time.Second

// Verify parses and validates a bearer token's signature, issuer,
// audience, and expiry (with clock-skew tolerance), returning its claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method)
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithAudience(i.audience), jwt.WithLeeway(clockSkew))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
