package httptransport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rjsadow/agentproto/internal/chatstream"
)

// handleChat implements POST /api/chat: decodes the request, then streams
// the response over SSE by driving the ChatStreamer in a goroutine and
// serving its published events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req chatstream.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "malformed chat request", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	go s.Chat.Run(r.Context(), req.SessionID, req)

	_ = s.Broker.ServeSSE(r.Context(), w, req.SessionID, 0)
}

type cancelRequest struct {
	SessionID string `json:"sessionId"`
}

// handleCancel implements POST /api/cancel: aborts the in-flight chat for
// a session, per spec.md 4.4/4.6.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "malformed cancel request", http.StatusBadRequest)
		return
	}

	found := s.Cancels.Cancel(req.SessionID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"cancelled": found})
}
