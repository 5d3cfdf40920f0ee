// Package httptransport exposes the JSON-RPC agent protocol, the
// streaming chat API, and health endpoints over HTTP, wiring the
// Authenticator, LifecycleManager, ToolRegistry/Executor, SSEBroker, and
// OAuthServer together. Route assembly follows the teacher's
// internal/server/server.go App struct and composable-middleware style
// (withTenant := func(h) {...}), generalized from Launchpad's
// apps/sessions/admin route groups to the protocol's /mcp, /api/chat,
// /api/cancel, /health, /ready, and /oauth/* surface.
package httptransport

import (
	"net/http"
	"time"

	"github.com/rjsadow/agentproto/internal/authn"
	"github.com/rjsadow/agentproto/internal/cancel"
	"github.com/rjsadow/agentproto/internal/chatstream"
	"github.com/rjsadow/agentproto/internal/health"
	"github.com/rjsadow/agentproto/internal/lifecycle"
	"github.com/rjsadow/agentproto/internal/middleware"
	"github.com/rjsadow/agentproto/internal/oauth"
	"github.com/rjsadow/agentproto/internal/rpc"
	"github.com/rjsadow/agentproto/internal/shutdown"
	"github.com/rjsadow/agentproto/internal/sse"
	"github.com/rjsadow/agentproto/internal/telemetry"
	"github.com/rjsadow/agentproto/internal/toolexecutor"
	"github.com/rjsadow/agentproto/internal/toolregistry"
)

// Server bundles every collaborator the HTTP transport dispatches to.
type Server struct {
	Lifecycle    *lifecycle.Manager
	Registry     *toolregistry.Registry
	Executor     *toolexecutor.Executor
	Broker       *sse.Broker
	OAuth        *oauth.Server
	Auth         *authn.Authenticator
	Cancels      *cancel.Coordinator
	Chat         *chatstream.Streamer
	Health       *health.Surface
	ShutdownC    *shutdown.Coordinator
	Sink         *telemetry.Sink
	CursorSecret []byte

	AllowedOrigins    []string
	SupportedVersions []string
	Stateless         bool

	RateLimitRPS   float64
	RateLimitBurst int

	router  *rpc.Router
	limiter *middleware.SessionLimiter
}

func NewServer(s Server) *Server {
	srv := &s
	srv.router = rpc.NewRouter()
	srv.registerMethods()

	rps, burst := srv.RateLimitRPS, srv.RateLimitBurst
	if rps <= 0 {
		rps = defaultRateLimitRPS
	}
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	srv.limiter = middleware.NewSessionLimiter(rps, burst, nil)

	return srv
}

// Router exposes the shared JSON-RPC method table so the stdio transport
// can dispatch through the identical handlers, satisfying the
// cross-transport equivalence invariant (spec.md 8, invariant 8).
func (s *Server) Router() *rpc.Router { return s.router }

// Handler builds the top-level mux, wrapping every route with the
// per-request pipeline of spec.md 4.4.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/mcp", s.withPipeline(false, s.handleMCP))
	mux.HandleFunc("/api/chat", s.withPipeline(true, s.handleChat))
	mux.HandleFunc("/api/cancel", s.withPipeline(true, s.handleCancel))

	mux.HandleFunc("/health", s.Health.Liveness)
	mux.HandleFunc("/ready", s.Health.Readiness)

	mux.HandleFunc("/oauth/authorize", s.OAuth.HandleAuthorize)
	mux.HandleFunc("/oauth/login", s.OAuth.HandleLogin)
	mux.HandleFunc("/oauth/token", s.OAuth.HandleToken)

	return middleware.RequestID(middleware.SecurityHeaders(s.limiter.Wrap(mux)))
}

const (
	defaultRateLimitRPS   = 5.0
	defaultRateLimitBurst = 20
)

// withPipeline applies origin enforcement, shutdown tracking, and (for
// protected routes) the auth gate, per spec.md 4.4's per-request
// pipeline. requireAuth is false for /mcp because initialize requests on
// that route are exempt; the method handler itself enforces auth for
// every other method.
func (s *Server) withPipeline(requireAuth bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		untrack := s.ShutdownC.Track()
		defer untrack()

		if requireAuth {
			claims, err := s.Auth.Authenticate(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="agentproto"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			r = r.WithContext(withClaims(r.Context(), claims))
		}

		next(w, r)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

const defaultShutdownGrace = 500 * time.Millisecond
