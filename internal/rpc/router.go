package rpc

import (
	"context"
	"encoding/json"
)

// Handler processes the params of a single method call and returns a
// result to be marshalled into Response.Result, or an *Error. For
// notifications (no id) Dispatch discards both return values and writes no
// response.
type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// Router dispatches decoded requests to registered method handlers,
// mirroring the teacher's ServeMux-composition style in internal/server
// but for JSON-RPC methods rather than HTTP routes.
type Router struct {
	handlers map[string]Handler

	// Gate runs before any handler except those named in GateExempt; a
	// non-nil return short-circuits dispatch. Both transports share one
	// Router so the lifecycle readiness gate applies identically to
	// stdio and HTTP, satisfying the cross-transport equivalence
	// invariant (spec.md 8, invariant 8).
	Gate       func(ctx context.Context, method string) *Error
	GateExempt map[string]bool
}

func NewRouter() *Router {
	return &Router{
		handlers:   make(map[string]Handler),
		GateExempt: map[string]bool{"initialize": true, "notifications/initialized": true},
	}
}

func (r *Router) Handle(method string, h Handler) {
	r.handlers[method] = h
}

// Dispatch looks up and invokes the handler for req.Method. A handler
// panic is not recovered here; it propagates to the calling transport.
// The stdio transport recovers and logs it without writing a response;
// the HTTP transport has no recover of its own.
func (r *Router) Dispatch(ctx context.Context, req *Request) *Response {
	h, ok := r.handlers[req.Method]
	if !ok {
		if req.IsNotification() {
			return nil
		}
		return NewErrorResponse(req.ID, NewError(CodeMethodNotFound, "Method not found: "+req.Method))
	}

	if r.Gate != nil && !r.GateExempt[req.Method] {
		if rpcErr := r.Gate(ctx, req.Method); rpcErr != nil {
			if req.IsNotification() {
				return nil
			}
			return NewErrorResponse(req.ID, rpcErr)
		}
	}

	result, rpcErr := h(ctx, req.Params)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	return NewResponse(req.ID, result)
}
