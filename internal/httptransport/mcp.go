package httptransport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rjsadow/agentproto/internal/authn"
	"github.com/rjsadow/agentproto/internal/rpc"
)

const sessionHeader = "mcp-session-id"
const protocolVersionHeader = "mcp-protocol-version"

// handleMCP dispatches POST (a JSON-RPC request/notification) and GET (an
// SSE attach) on the shared /mcp route, per spec.md 4.4's route table.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleMCPPost(w, r)
	case http.MethodGet:
		s.handleMCPGet(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) supportsVersion(v string) bool {
	for _, sv := range s.SupportedVersions {
		if sv == v {
			return true
		}
	}
	return false
}

func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	version := r.Header.Get(protocolVersionHeader)
	if version == "" || !s.supportsVersion(version) {
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req, rpcErr := rpc.Decode(body)
	if rpcErr != nil {
		writeJSON(w, http.StatusOK, rpc.NewErrorResponse(nil, rpcErr))
		return
	}

	sessionID := r.Header.Get(sessionHeader)

	// Once a session has negotiated a protocol version during initialize,
	// every subsequent request on it must carry that same version, not
	// merely one the server supports in general.
	if req.Method != "initialize" && sessionID != "" {
		if sess, ok := s.Lifecycle.Get(sessionID); ok {
			if negotiated := sess.NegotiatedVersion(); negotiated != "" && negotiated != version {
				writeJSON(w, http.StatusOK, rpc.NewErrorResponse(req.ID, rpc.NewError(rpc.CodeInvalidRequest, "Protocol version does not match the session's negotiated version")))
				return
			}
		}
	}

	ctx := r.Context()
	if req.Method != "initialize" {
		required := authn.MethodScope(req.Method)
		claims, authErr := s.Auth.Authenticate(r)
		if authErr != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="agentproto"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !authn.HasScope(claims.Scopes(), required) {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="agentproto", error="insufficient_scope", scope=%q`, required))
			http.Error(w, "insufficient scope", http.StatusForbidden)
			return
		}
		ctx = withClaims(ctx, claims)
	}
	ctx = withSessionID(ctx, sessionID)

	resp := s.router.Dispatch(ctx, req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if req.Method == "initialize" {
		if ir, ok := resp.Result.(initializeResult); ok && ir.SessionID != "" {
			w.Header().Set(sessionHeader, ir.SessionID)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleMCPGet(w http.ResponseWriter, r *http.Request) {
	if s.Stateless {
		http.Error(w, "SSE is disabled in stateless mode", http.StatusNotImplemented)
		return
	}
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "mcp-session-id header is required", http.StatusBadRequest)
		return
	}
	if _, ok := s.Lifecycle.Get(sessionID); !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	var lastEventID uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			lastEventID = n
		}
	}

	_ = s.Broker.ServeSSE(r.Context(), w, sessionID, lastEventID)
}
