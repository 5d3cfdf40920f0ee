package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rjsadow/agentproto/internal/jwtissuer"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	issuer, err := jwtissuer.New([]byte("a-test-signing-secret-that-is-32b!"), "agentproto", "mcp-ui-client", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	users := NewUserStore()
	_ = users.AddUser("demo", "demo")
	return NewServer(NewStore(), users, issuer, Client{ID: "mcp-ui-client", RedirectURI: "http://localhost:5173/callback"}, time.Hour, "mcp:read", nil)
}

func TestHandleAuthorizeRejectsUnknownClient(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+url.Values{
		"response_type":         {"code"},
		"client_id":             {"someone-else"},
		"redirect_uri":          {"http://localhost:5173/callback"},
		"code_challenge":        {"x"},
		"code_challenge_method": {"S256"},
		"state":                 {"s"},
	}.Encode(), nil)
	rec := httptest.NewRecorder()
	s.HandleAuthorize(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleAuthorizeRequiresS256Challenge(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+url.Values{
		"response_type": {"code"},
		"client_id":     {"mcp-ui-client"},
		"redirect_uri":  {"http://localhost:5173/callback"},
		"state":         {"s"},
	}.Encode(), nil)
	rec := httptest.NewRecorder()
	s.HandleAuthorize(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleLoginRejectsWrongPasswordWithRedirectError(t *testing.T) {
	s := testServer(t)
	qs := url.Values{
		"client_id":             {"mcp-ui-client"},
		"redirect_uri":          {"http://localhost:5173/callback"},
		"code_challenge":        {"x"},
		"code_challenge_method": {"S256"},
		"state":                 {"s"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/login?"+qs.Encode(), strings.NewReader(url.Values{
		"username": {"demo"},
		"password": {"wrong"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.HandleLogin(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("unexpected error parsing Location: %v", err)
	}
	if loc.Query().Get("error") != "access_denied" {
		t.Errorf("error = %q, want access_denied", loc.Query().Get("error"))
	}
}

func TestHandleTokenRejectsUnsupportedGrantType(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(url.Values{
		"grant_type": {"client_credentials"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.HandleToken(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported_grant_type") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleTokenRejectsWrongPKCEVerifier(t *testing.T) {
	s := testServer(t)
	verifier := strings.Repeat("a", 64)
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	s.store.PutCode(AuthCode{
		Code:          "code1",
		ClientID:      "mcp-ui-client",
		RedirectURI:   "http://localhost:5173/callback",
		CodeChallenge: challenge,
		Subject:       "demo",
		Scope:         "mcp:read",
		ExpiresAt:     time.Now().Add(time.Minute),
	})

	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"code1"},
		"redirect_uri":  {"http://localhost:5173/callback"},
		"client_id":     {"mcp-ui-client"},
		"code_verifier": {"wrong-verifier-of-sufficient-length-0123456789"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.HandleToken(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_grant") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleTokenRefreshGrantRotatesToken(t *testing.T) {
	s := testServer(t)
	s.store.PutRefreshToken(RefreshToken{
		Token:     "rt1",
		ClientID:  "mcp-ui-client",
		Subject:   "demo",
		Scope:     "mcp:read",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"rt1"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.HandleToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"token_type":"Bearer"`) {
		t.Errorf("body = %q", rec.Body.String())
	}

	// the original refresh token must no longer be usable
	replay := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"rt1"},
	}.Encode()))
	replay.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	replayRec := httptest.NewRecorder()
	s.HandleToken(replayRec, replay)
	if replayRec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a replayed refresh token", replayRec.Code)
	}
}
