package httptransport

import (
	"context"

	"github.com/rjsadow/agentproto/internal/jwtissuer"
	"github.com/rjsadow/agentproto/internal/reqcontext"
)

func withClaims(ctx context.Context, claims *jwtissuer.Claims) context.Context {
	return reqcontext.WithClaims(ctx, claims)
}

func claimsFrom(ctx context.Context) (*jwtissuer.Claims, bool) {
	return reqcontext.ClaimsFrom(ctx)
}

func withSessionID(ctx context.Context, sessionID string) context.Context {
	return reqcontext.WithSessionID(ctx, sessionID)
}

func sessionIDFrom(ctx context.Context) string {
	return reqcontext.SessionIDFrom(ctx)
}
