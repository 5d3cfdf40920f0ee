// Package reqcontext carries the per-call session id and authenticated
// claims through context.Context, shared by every transport so the
// lifecycle gate and method handlers see identical request metadata
// regardless of whether the call arrived over HTTP or stdio.
package reqcontext

import (
	"context"

	"github.com/rjsadow/agentproto/internal/jwtissuer"
)

type claimsKey struct{}
type sessionIDKey struct{}

func WithClaims(ctx context.Context, claims *jwtissuer.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func ClaimsFrom(ctx context.Context) (*jwtissuer.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*jwtissuer.Claims)
	return c, ok
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

func SessionIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(sessionIDKey{}).(string)
	return s
}
