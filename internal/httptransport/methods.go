package httptransport

import (
	"context"
	"encoding/json"

	"github.com/rjsadow/agentproto/internal/lifecycle"
	"github.com/rjsadow/agentproto/internal/rpc"
	"github.com/rjsadow/agentproto/internal/toolregistry"
)

const serverName = "agentproto"
const serverVersion = "0.1.0"

// initializeResult wraps lifecycle.InitializeResult with the session id
// the transport needs for the mcp-session-id response header; SessionID
// is deliberately unexported from the JSON wire shape (the data model
// carries it as a header, not a body field).
type initializeResult struct {
	lifecycle.InitializeResult
	SessionID string `json:"-"`
}

// registerMethods wires the JSON-RPC method table of spec.md 6 to the
// lifecycle/registry/executor collaborators, and installs the lifecycle
// readiness gate once on the shared Router so stdio and HTTP enforce it
// identically (spec.md 8, invariant 8).
func (s *Server) registerMethods() {
	s.router.Handle("initialize", s.handleInitialize)
	s.router.Handle("notifications/initialized", s.handleInitialized)
	s.router.Handle("tools/list", s.handleToolsList)
	s.router.Handle("tools/call", s.handleToolsCall)

	s.router.Gate = func(ctx context.Context, _ string) *rpc.Error {
		if s.Stateless {
			return nil
		}
		_, rerr := s.Lifecycle.RequireReady(sessionIDFrom(ctx))
		return rerr
	}
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
	var p lifecycle.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpc.NewError(rpc.CodeInvalidParams, "malformed initialize params")
		}
	}

	sess, rerr := s.Lifecycle.Initialize(sessionIDFrom(ctx), p, lifecycle.ServerInfo{Name: serverName, Version: serverVersion}, map[string]any{
		"tools": map[string]any{"listChanged": true},
	})
	if rerr != nil {
		return nil, rerr
	}

	return initializeResult{
		InitializeResult: lifecycle.InitializeResult{
			ProtocolVersion: sess.NegotiatedVersion(),
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": true}},
			ServerInfo:      lifecycle.ServerInfo{Name: serverName, Version: serverVersion},
		},
		SessionID: sess.ID(),
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, _ json.RawMessage) (any, *rpc.Error) {
	if rerr := s.Lifecycle.MarkInitialized(sessionIDFrom(ctx)); rerr != nil {
		return nil, rerr
	}
	return nil, nil
}

type toolsListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
	var p toolsListParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpc.NewError(rpc.CodeInvalidParams, "malformed tools/list params")
		}
	}
	codec := toolregistry.NewCursorCodec(s.CursorSecret)
	return s.Registry.List(codec, p.Cursor, toolregistry.DefaultPageSize), nil
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
	var p toolsCallParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpc.NewError(rpc.CodeInvalidParams, "malformed tools/call params")
		}
	}
	if p.Name == "" {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "name is required")
	}
	return s.Executor.Execute(ctx, p.Name, p.Arguments), nil
}
