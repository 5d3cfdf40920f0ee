package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"time"

	"github.com/rjsadow/agentproto/internal/idgen"
	"github.com/rjsadow/agentproto/internal/jwtissuer"
	"github.com/rjsadow/agentproto/internal/telemetry"
)

// Client is the single static client spec.md's Non-goals permit ("single
// client/realm"), registered at startup rather than dynamically.
type Client struct {
	ID          string
	RedirectURI string
}

const AuthCodeTTL = 60 * time.Second

// Server implements the GET /oauth/authorize, POST /oauth/login, and POST
// /oauth/token endpoints of spec.md 4.7.
type Server struct {
	store       *Store
	users       *UserStore
	issuer      *jwtissuer.Issuer
	client      Client
	refreshTTL  time.Duration
	defaultScope string
	log         telemetry.Logger
}

func NewServer(store *Store, users *UserStore, issuer *jwtissuer.Issuer, client Client, refreshTTL time.Duration, defaultScope string, log telemetry.Logger) *Server {
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if defaultScope == "" {
		defaultScope = "mcp:read"
	}
	return &Server{store: store, users: users, issuer: issuer, client: client, refreshTTL: refreshTTL, defaultScope: defaultScope, log: log}
}

// errorBody is the OAuth 2.1 error envelope from spec.md 6.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: code, ErrorDescription: description})
}

// HandleAuthorize implements GET /oauth/authorize.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	responseType := q.Get("response_type")
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	challenge := q.Get("code_challenge")
	challengeMethod := q.Get("code_challenge_method")
	state := q.Get("state")

	if responseType != "code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_response_type", "only response_type=code is supported")
		return
	}
	if clientID != s.client.ID {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client_id")
		return
	}
	if redirectURI != s.client.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri does not match the registered value")
		return
	}
	if challengeMethod != "S256" || challenge == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code_challenge_method=S256 with a code_challenge is required")
		return
	}
	if state == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "state is required")
		return
	}

	// Render a minimal login form embedding the original query string, per
	// spec.md 4.7 ("Render a login form embedding the original query string").
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body><form method="POST" action="/oauth/login?%s">
<input name="username" placeholder="username">
<input name="password" type="password" placeholder="password">
<button type="submit">Log in</button>
</form></body></html>`, html.EscapeString(q.Encode()))
}

// HandleLogin implements POST /oauth/login.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	challenge := q.Get("code_challenge")
	challengeMethod := q.Get("code_challenge_method")
	state := q.Get("state")

	if clientID != s.client.ID || redirectURI != s.client.RedirectURI || challengeMethod != "S256" || challenge == "" || state == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed authorization parameters")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if !s.users.Authenticate(username, password) {
		redirectWithError(w, r, redirectURI, state, "access_denied")
		return
	}

	code := idgen.AuthCode()
	s.store.PutCode(AuthCode{
		Code:          code,
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		CodeChallenge: challenge,
		Subject:       username,
		Scope:         s.defaultScope,
		State:         state,
		ExpiresAt:     time.Now().Add(AuthCodeTTL),
	})

	dest, _ := url.Parse(redirectURI)
	qs := dest.Query()
	qs.Set("code", code)
	qs.Set("state", state)
	dest.RawQuery = qs.Encode()
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI, state, code string) {
	dest, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "bad redirect_uri")
		return
	}
	qs := dest.Query()
	qs.Set("error", code)
	qs.Set("state", state)
	dest.RawQuery = qs.Encode()
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// HandleToken implements POST /oauth/token for both grant types.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	redirectURI := r.FormValue("redirect_uri")
	clientID := r.FormValue("client_id")
	verifier := r.FormValue("code_verifier")

	// Consumption happens before any further validation — spec.md 3:
	// "consumption removes it even on PKCE failure."
	ac, ok := s.store.ConsumeCode(code)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is unknown, expired, or already used")
		return
	}
	if ac.ClientID != clientID || ac.RedirectURI != redirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "client_id or redirect_uri mismatch")
		return
	}
	if !VerifyPKCE(verifier, ac.CodeChallenge) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}

	s.issueTokenPair(w, ac.Subject, ac.ClientID, ac.Scope)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	presented := r.FormValue("refresh_token")

	rt, ok := s.store.RotateRefreshToken(presented)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is unknown, expired, or already rotated")
		return
	}

	s.issueTokenPair(w, rt.Subject, rt.ClientID, rt.Scope)
}

func (s *Server) issueTokenPair(w http.ResponseWriter, subject, clientID, scope string) {
	access, _, expiresIn, err := s.issuer.Issue(subject, scope)
	if err != nil {
		if s.log != nil {
			s.log.Error(context.Background(), "failed to issue access token", "error", err)
		}
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	refresh := idgen.RefreshToken()
	s.store.PutRefreshToken(RefreshToken{
		Token:     refresh,
		ClientID:  clientID,
		Subject:   subject,
		Scope:     scope,
		ExpiresAt: time.Now().Add(s.refreshTTL),
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}
