// Package config provides centralized configuration management for the
// agent protocol server. Configuration is loaded from environment
// variables with sensible defaults; required configuration that is
// missing or malformed causes the application to fail fast with helpful
// error messages. Adapted from the teacher's internal/config/config.go
// (same Load/Validate/ValidationErrors shape), generalized from
// Launchpad's branding/k8s/session surface to spec.md 6's process
// surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport selects which transport(s) the server exposes.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
	TransportBoth  Transport = "both"
)

// Config holds all application configuration, per spec.md 6's process
// surface.
type Config struct {
	Transport Transport
	Port      int
	Host      string

	ShutdownTimeout time.Duration

	AllowedOrigins []string

	CursorSecret []byte

	OAuthSigningSecret  []byte
	OAuthIssuer         string
	OAuthAccessTokenTTL time.Duration
	OAuthRefreshTokenTTL time.Duration

	OAuthTestUser     string
	OAuthTestPassword string

	OAuthClientID          string
	OAuthClientRedirectURI string

	AuthEnabled bool

	SupportedProtocolVersions []string

	SessionIdleTTL         time.Duration
	SessionCleanupInterval time.Duration

	ToolCallTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	// OTelExporterEndpoint, when set, switches the Sink's Tracer/Metrics
	// from the noop implementation to the OpenTelemetry one. Named after
	// the OTLP exporter's own standard env var rather than an MCP_-prefixed
	// one, since it's the collector endpoint, not protocol configuration.
	OTelExporterEndpoint string
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Default values.
const (
	DefaultPort                   = 8080
	DefaultHost                   = "0.0.0.0"
	DefaultShutdownTimeout        = 30 * time.Second
	DefaultOAuthAccessTokenTTL    = time.Hour
	DefaultOAuthRefreshTokenTTL   = 30 * 24 * time.Hour
	DefaultOAuthIssuer            = "https://agentproto.local"
	DefaultSessionIdleTTL         = 30 * time.Minute
	DefaultSessionCleanupInterval = time.Minute
	DefaultToolCallTimeout        = 30 * time.Second
	DefaultRateLimitRPS           = 5.0
	DefaultRateLimitBurst         = 20
)

// DefaultSupportedProtocolVersions is the set Initialize negotiates
// against when MCP_SUPPORTED_PROTOCOL_VERSIONS is unset.
var DefaultSupportedProtocolVersions = []string{"2025-11-25"}

// Load reads configuration from environment variables and returns a
// Config, applying defaults for optional values and validating the
// result.
func Load() (*Config, error) {
	cfg := &Config{
		Transport:                 TransportHTTP,
		Port:                      DefaultPort,
		Host:                      DefaultHost,
		ShutdownTimeout:           DefaultShutdownTimeout,
		OAuthIssuer:               DefaultOAuthIssuer,
		OAuthAccessTokenTTL:       DefaultOAuthAccessTokenTTL,
		OAuthRefreshTokenTTL:      DefaultOAuthRefreshTokenTTL,
		AuthEnabled:               true,
		SupportedProtocolVersions: DefaultSupportedProtocolVersions,
		SessionIdleTTL:            DefaultSessionIdleTTL,
		SessionCleanupInterval:    DefaultSessionCleanupInterval,
		ToolCallTimeout:           DefaultToolCallTimeout,
		OAuthClientID:             "mcp-ui-client",
		OAuthClientRedirectURI:    "http://localhost:5173/callback",
		RateLimitRPS:              DefaultRateLimitRPS,
		RateLimitBurst:            DefaultRateLimitBurst,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	var parseErrors ValidationErrors

	if v := os.Getenv("MCP_TRANSPORT"); v != "" {
		switch Transport(v) {
		case TransportStdio, TransportHTTP, TransportBoth:
			c.Transport = Transport(v)
		default:
			parseErrors = append(parseErrors, ValidationError{
				Field:   "MCP_TRANSPORT",
				Message: fmt.Sprintf("must be one of stdio, http, both; got %q", v),
			})
		}
	}

	if v := os.Getenv("MCP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{Field: "MCP_PORT", Message: fmt.Sprintf("invalid port: %q", v)})
		} else {
			c.Port = port
		}
	}

	if v := os.Getenv("MCP_HOST"); v != "" {
		c.Host = v
	}

	if v := os.Getenv("MCP_SHUTDOWN_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			parseErrors = append(parseErrors, ValidationError{Field: "MCP_SHUTDOWN_TIMEOUT_MS", Message: fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.ShutdownTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("MCP_ALLOWED_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}

	if v := os.Getenv("MCP_CURSOR_SECRET"); v != "" {
		c.CursorSecret = []byte(v)
	}

	if v := os.Getenv("OAUTH_SIGNING_SECRET"); v != "" {
		c.OAuthSigningSecret = []byte(v)
	}

	if v := os.Getenv("OAUTH_ISSUER"); v != "" {
		c.OAuthIssuer = v
	}

	if v := os.Getenv("OAUTH_ACCESS_TOKEN_TTL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			parseErrors = append(parseErrors, ValidationError{Field: "OAUTH_ACCESS_TOKEN_TTL", Message: fmt.Sprintf("must be a positive integer of seconds, got %q", v)})
		} else {
			c.OAuthAccessTokenTTL = time.Duration(seconds) * time.Second
		}
	}

	if v := os.Getenv("OAUTH_REFRESH_TOKEN_TTL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			parseErrors = append(parseErrors, ValidationError{Field: "OAUTH_REFRESH_TOKEN_TTL", Message: fmt.Sprintf("must be a positive integer of seconds, got %q", v)})
		} else {
			c.OAuthRefreshTokenTTL = time.Duration(seconds) * time.Second
		}
	}

	if v := os.Getenv("OAUTH_TEST_USER"); v != "" {
		c.OAuthTestUser = v
	}
	if v := os.Getenv("OAUTH_TEST_PASSWORD"); v != "" {
		c.OAuthTestPassword = v
	}

	if v := os.Getenv("OAUTH_CLIENT_ID"); v != "" {
		c.OAuthClientID = v
	}
	if v := os.Getenv("OAUTH_CLIENT_REDIRECT_URI"); v != "" {
		c.OAuthClientRedirectURI = v
	}

	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		c.AuthEnabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("MCP_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			parseErrors = append(parseErrors, ValidationError{Field: "MCP_RATE_LIMIT_RPS", Message: fmt.Sprintf("must be a positive number, got %q", v)})
		} else {
			c.RateLimitRPS = rps
		}
	}

	if v := os.Getenv("MCP_RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil || burst <= 0 {
			parseErrors = append(parseErrors, ValidationError{Field: "MCP_RATE_LIMIT_BURST", Message: fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.RateLimitBurst = burst
		}
	}

	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTelExporterEndpoint = v
	}

	if v := os.Getenv("MCP_SUPPORTED_PROTOCOL_VERSIONS"); v != "" {
		c.SupportedProtocolVersions = nil
		for _, ver := range strings.Split(v, ",") {
			if ver = strings.TrimSpace(ver); ver != "" {
				c.SupportedProtocolVersions = append(c.SupportedProtocolVersions, ver)
			}
		}
	}

	if len(parseErrors) > 0 {
		return parseErrors
	}
	return nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ValidationError{Field: "MCP_PORT", Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port)})
	}

	if c.Transport != TransportStdio && len(c.CursorSecret) == 0 {
		errs = append(errs, ValidationError{Field: "MCP_CURSOR_SECRET", Message: "required when serving the HTTP transport (tools/list pagination cursors are HMAC-signed)"})
	}

	if c.AuthEnabled && len(c.OAuthSigningSecret) < 32 {
		errs = append(errs, ValidationError{Field: "OAUTH_SIGNING_SECRET", Message: "must be at least 32 bytes when AUTH_ENABLED is true"})
	}

	if len(c.SupportedProtocolVersions) == 0 {
		errs = append(errs, ValidationError{Field: "MCP_SUPPORTED_PROTOCOL_VERSIONS", Message: "at least one supported protocol version is required"})
	}

	return errs
}

// MustLoad loads configuration and exits the process if it fails,
// following the teacher's MustLoad fail-fast convention.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: failed to load configuration\n\n%s\n", err)
		os.Exit(1)
	}
	return cfg
}
