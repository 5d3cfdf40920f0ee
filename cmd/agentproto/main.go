// Command agentproto runs the reference agent-protocol server: the
// JSON-RPC tool-calling protocol over stdio and/or streaming HTTP, backed
// by an in-memory OAuth 2.1 authorization server. Wiring and flag/env
// precedence follow the teacher's main.go (slog JSON handler at startup,
// flag.Parse layered over config.Load, explicit dependency construction
// rather than a DI framework).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/rjsadow/agentproto/internal/authn"
	"github.com/rjsadow/agentproto/internal/cancel"
	"github.com/rjsadow/agentproto/internal/chatstream"
	"github.com/rjsadow/agentproto/internal/config"
	"github.com/rjsadow/agentproto/internal/exampletools"
	"github.com/rjsadow/agentproto/internal/health"
	"github.com/rjsadow/agentproto/internal/httptransport"
	"github.com/rjsadow/agentproto/internal/jwtissuer"
	"github.com/rjsadow/agentproto/internal/lifecycle"
	"github.com/rjsadow/agentproto/internal/oauth"
	"github.com/rjsadow/agentproto/internal/rpc"
	"github.com/rjsadow/agentproto/internal/shutdown"
	"github.com/rjsadow/agentproto/internal/sse"
	"github.com/rjsadow/agentproto/internal/stdiotransport"
	"github.com/rjsadow/agentproto/internal/telemetry"
	"github.com/rjsadow/agentproto/internal/toolexecutor"
	"github.com/rjsadow/agentproto/internal/toolregistry"
)

func main() {
	port := flag.Int("port", 0, "HTTP port override")
	transport := flag.String("transport", "", "transport override: stdio, http, both")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.MustLoad()
	if *port != 0 {
		cfg.Port = *port
	}
	if *transport != "" {
		cfg.Transport = config.Transport(*transport)
	}

	sink := telemetry.NewDefault(logger)
	if cfg.OTelExporterEndpoint != "" {
		sink = telemetry.NewOtel(logger, "agentproto")
	}

	if err := run(cfg, sink); err != nil {
		sink.Logger.Error(context.Background(), "fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, sink *telemetry.Sink) error {
	ctx := context.Background()

	lifecycleMgr := lifecycle.NewManager(lifecycle.Config{
		SupportedVersions: cfg.SupportedProtocolVersions,
		IdleTTL:           cfg.SessionIdleTTL,
		CleanupInterval:   cfg.SessionCleanupInterval,
	}, sink.Logger)
	lifecycleMgr.Start()

	registry := toolregistry.NewRegistry()
	if err := exampletools.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("registering builtin tools: %w", err)
	}

	executor := toolexecutor.NewExecutor(registry, cfg.ToolCallTimeout, sink)

	broker := sse.NewBroker()
	cancels := cancel.NewCoordinator()

	registry.Subscribe(func(ev toolregistry.Event) {
		// notifications/tools/listChanged has no params; fan it out to
		// every ready session's SSE stream as a JSON-RPC notification,
		// per spec.md 4.2/6.
		notification, err := json.Marshal(rpc.Request{JSONRPC: rpc.Version, Method: "notifications/tools/listChanged"})
		if err != nil {
			return
		}
		for _, sessionID := range lifecycleMgr.ReadySessionIDs() {
			broker.Publish(sessionID, "message", notification)
		}
	})

	var issuer *jwtissuer.Issuer
	var err error
	if cfg.AuthEnabled {
		issuer, err = jwtissuer.New(cfg.OAuthSigningSecret, cfg.OAuthIssuer, cfg.OAuthClientID, cfg.OAuthAccessTokenTTL)
		if err != nil {
			return fmt.Errorf("jwtissuer: %w", err)
		}
	}

	store := oauth.NewStore()
	users := oauth.NewUserStore()
	if cfg.OAuthTestUser != "" {
		if err := users.AddUser(cfg.OAuthTestUser, cfg.OAuthTestPassword); err != nil {
			return fmt.Errorf("oauth: seeding test user: %w", err)
		}
	}
	oauthServer := oauth.NewServer(store, users, issuer, oauth.Client{
		ID:          cfg.OAuthClientID,
		RedirectURI: cfg.OAuthClientRedirectURI,
	}, cfg.OAuthRefreshTokenTTL, authn.ScopeRead, sink.Logger)

	authenticator := authn.New(issuer, cfg.AuthEnabled, cfg.OAuthIssuer, "")

	healthSurface := health.NewSurface()
	shutdownCoord := shutdown.NewCoordinator(cfg.ShutdownTimeout, sink.Logger)

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
		CursorSecret:      cfg.CursorSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		SupportedVersions: cfg.SupportedProtocolVersions,
		Stateless:         false,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: httpSrv.Handler(),
	}

	shutdownCoord.OnBeginShutdown(lifecycleMgr.BeginShutdown, healthSurface.SetReady)
	shutdownCoord.Register(shutdown.CleanupHandler{
		Name: "http_server_close",
		Run: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
	shutdownCoord.Register(shutdown.CleanupHandler{
		Name: "sse_broker_flush",
		Run: func(ctx context.Context) error {
			cancels.CancelAll()
			return nil
		},
	})

	if cfg.Transport == config.TransportHTTP || cfg.Transport == config.TransportBoth {
		go func() {
			sink.Logger.Info(ctx, "http transport listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sink.Logger.Error(ctx, "http server error", "error", err)
			}
		}()
	}

	if cfg.Transport == config.TransportStdio || cfg.Transport == config.TransportBoth {
		stdioCtx, stdioCancel := context.WithCancel(ctx)
		stdioSrv := stdiotransport.New(os.Stdin, os.Stdout, httpSrv.Router(), sink.Logger)
		shutdownCoord.Register(shutdown.CleanupHandler{
			Name: "stdio_transport_close",
			Run:  func(ctx context.Context) error { stdioCancel(); return nil },
		})
		go func() {
			sink.Logger.Info(ctx, "stdio transport reading", "fd", "stdin")
			if err := stdioSrv.Run(stdioCtx); err != nil {
				sink.Logger.Error(ctx, "stdio transport error", "error", err)
			}
			// EOF on stdin is itself a shutdown trigger per spec.md 6.
			shutdownCoord.TriggerShutdown()
		}()
	}

	shutdownCoord.Register(shutdown.CleanupHandler{
		Name: "lifecycle_manager_stop",
		Run: func(ctx context.Context) error {
			lifecycleMgr.Stop()
			return nil
		},
	})

	shutdownCoord.Run(ctx)
	return nil
}

// noopProducer is the default model Producer wired when no real LLM
// backend is configured; it immediately ends the stream, since spec.md 1
// scopes the model backend out as an external collaborator.
type noopProducer struct{}

func (noopProducer) Stream(ctx context.Context, messages []chatstream.Message) (<-chan chatstream.Delta, <-chan error) {
	deltas := make(chan chatstream.Delta, 1)
	errs := make(chan error, 1)
	deltas <- chatstream.Delta{Kind: chatstream.DeltaDone, Usage: &chatstream.Usage{}}
	close(deltas)
	close(errs)
	return deltas, errs
}
