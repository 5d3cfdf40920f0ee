// Package testutil builds a fully wired agentproto server in-process for
// the end-to-end suite, the way the teacher's tests/integration/testutil
// built an httptest.Server around server.App — generalized here to the
// agent-protocol collaborator graph instead of the session/DB/runner one.
package testutil

import (
	"context"
	"net/http/httptest"
	"time"

	"github.com/rjsadow/agentproto/internal/authn"
	"github.com/rjsadow/agentproto/internal/cancel"
	"github.com/rjsadow/agentproto/internal/chatstream"
	"github.com/rjsadow/agentproto/internal/exampletools"
	"github.com/rjsadow/agentproto/internal/health"
	"github.com/rjsadow/agentproto/internal/httptransport"
	"github.com/rjsadow/agentproto/internal/jwtissuer"
	"github.com/rjsadow/agentproto/internal/lifecycle"
	"github.com/rjsadow/agentproto/internal/oauth"
	"github.com/rjsadow/agentproto/internal/shutdown"
	"github.com/rjsadow/agentproto/internal/sse"
	"github.com/rjsadow/agentproto/internal/telemetry"
	"github.com/rjsadow/agentproto/internal/toolexecutor"
	"github.com/rjsadow/agentproto/internal/toolregistry"
)

const (
	TestJWTSigningSecret = "test-jwt-signing-secret-32-bytes!!"
	TestOAuthClientID     = "mcp-ui-client"
	TestOAuthRedirectURI  = "http://localhost:5173/callback"
	TestUser              = "demo"
	TestPassword           = "demo"
	ProtocolVersion        = "2025-11-25"
)

// Server wraps an httptest.Server plus the collaborators a test might want
// to reach into directly (e.g. to publish an SSE event without a round
// trip through chatstream).
type Server struct {
	HTTP      *httptest.Server
	URL       string
	Lifecycle *lifecycle.Manager
	Broker    *sse.Broker
}

// TB is the subset of testing.TB (and Ginkgo's GinkgoTInterface) New needs,
// so the same builder works from plain *testing.T tests and from Ginkgo
// specs via GinkgoT().
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}

// New builds a complete agentproto server and returns it wrapped in an
// httptest.Server, cleaned up automatically at the end of the test.
func New(t TB, authEnabled bool) *Server {
	t.Helper()

	sink := telemetry.NewDefault(nil)

	lifecycleMgr := lifecycle.NewManager(lifecycle.Config{
		SupportedVersions: []string{ProtocolVersion},
		IdleTTL:           time.Hour,
		CleanupInterval:   time.Hour,
	}, sink.Logger)
	lifecycleMgr.Start()
	t.Cleanup(lifecycleMgr.Stop)

	registry := toolregistry.NewRegistry()
	if err := exampletools.RegisterBuiltins(registry); err != nil {
		t.Fatalf("registering builtin tools: %v", err)
	}
	executor := toolexecutor.NewExecutor(registry, 5*time.Second, sink)

	broker := sse.NewBroker()
	cancels := cancel.NewCoordinator()

	var issuer *jwtissuer.Issuer
	if authEnabled {
		var err error
		issuer, err = jwtissuer.New([]byte(TestJWTSigningSecret), "https://agentproto.test", TestOAuthClientID, time.Hour)
		if err != nil {
			t.Fatalf("jwtissuer.New: %v", err)
		}
	}

	store := oauth.NewStore()
	users := oauth.NewUserStore()
	if err := users.AddUser(TestUser, TestPassword); err != nil {
		t.Fatalf("seeding test user: %v", err)
	}
	oauthServer := oauth.NewServer(store, users, issuer, oauth.Client{
		ID:          TestOAuthClientID,
		RedirectURI: TestOAuthRedirectURI,
	}, 30*24*time.Hour, authn.ScopeRead, sink.Logger)

	authenticator := authn.New(issuer, authEnabled, "https://agentproto.test", "")
	healthSurface := health.NewSurface()
	shutdownCoord := shutdown.NewCoordinator(5*time.Second, sink.Logger)
	chatStreamer := chatstream.NewStreamer(noopProducer{}, executor, broker, cancels)

	httpSrv := httptransport.NewServer(httptransport.Server{
		Lifecycle:         lifecycleMgr,
		Registry:          registry,
		Executor:          executor,
		Broker:            broker,
		OAuth:             oauthServer,
		Auth:              authenticator,
		Cancels:           cancels,
		Chat:              chatStreamer,
		Health:            healthSurface,
		ShutdownC:         shutdownCoord,
		Sink:              sink,
		CursorSecret:      []byte("test-cursor-secret"),
		AllowedOrigins:    nil,
		SupportedVersions: []string{ProtocolVersion},
		RateLimitRPS:      1000,
		RateLimitBurst:    1000,
	})

	ts := httptest.NewServer(httpSrv.Handler())
	t.Cleanup(ts.Close)

	return &Server{HTTP: ts, URL: ts.URL, Lifecycle: lifecycleMgr, Broker: broker}
}

type noopProducer struct{}

func (noopProducer) Stream(ctx context.Context, messages []chatstream.Message) (<-chan chatstream.Delta, <-chan error) {
	deltas := make(chan chatstream.Delta, 1)
	errs := make(chan error, 1)
	deltas <- chatstream.Delta{Kind: chatstream.DeltaDone, Usage: &chatstream.Usage{}}
	close(deltas)
	close(errs)
	return deltas, errs
}
