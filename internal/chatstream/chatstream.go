// Package chatstream drives the streaming chat API: it pulls deltas from
// an external model producer and republishes them as SSE events in the
// order spec.md 4.6 mandates. The model backend is deliberately out of
// scope (spec.md 1); Producer is the named interface an embedder plugs a
// real LLM client into.
package chatstream

import (
	"context"
	"encoding/json"

	"github.com/rjsadow/agentproto/internal/cancel"
	"github.com/rjsadow/agentproto/internal/sse"
	"github.com/rjsadow/agentproto/internal/toolexecutor"
)

// ChatRequest is the inbound POST /api/chat body.
type ChatRequest struct {
	SessionID string    `json:"sessionId,omitempty"`
	Messages  []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Delta is one unit the model Producer yields.
type Delta struct {
	Kind     DeltaKind
	Token    string
	ToolName string
	ToolArgs map[string]any
	ToolCallID string
	Usage    *Usage
}

type DeltaKind string

const (
	DeltaToken  DeltaKind = "token"
	DeltaToolCall DeltaKind = "tool_call"
	DeltaDone   DeltaKind = "done"
)

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Producer is the opaque streaming model backend spec.md 1 names as an
// external collaborator. Implementations push Deltas onto the channel and
// close it when finished or when ctx is cancelled.
type Producer interface {
	Stream(ctx context.Context, messages []Message) (<-chan Delta, <-chan error)
}

// Streamer drives a Producer and republishes its output as SSE events.
type Streamer struct {
	producer Producer
	executor *toolexecutor.Executor
	broker   *sse.Broker
	cancels  *cancel.Coordinator
}

func NewStreamer(producer Producer, executor *toolexecutor.Executor, broker *sse.Broker, cancels *cancel.Coordinator) *Streamer {
	return &Streamer{producer: producer, executor: executor, broker: broker, cancels: cancels}
}

// Run implements spec.md 4.6: acquires a cancellable context keyed by
// session id, drives the producer, and publishes token/tool_call/
// tool_result/done/error events in order, ending with exactly one of
// done or error.
func (s *Streamer) Run(ctx context.Context, sessionID string, req ChatRequest) {
	streamCtx := s.cancels.New(ctx, sessionID)
	defer s.cancels.Clear(sessionID)

	deltas, errs := s.producer.Stream(streamCtx, req.Messages)

	for {
		select {
		case <-streamCtx.Done():
			s.publishError(sessionID, "cancelled", "chat stream cancelled")
			return
		case err, ok := <-errs:
			if ok && err != nil {
				s.publishError(sessionID, "producer_error", err.Error())
				return
			}
		case delta, ok := <-deltas:
			if !ok {
				// The producer closed its deltas without a done delta: end
				// the stream with an error, carrying the producer's error
				// when one is already waiting.
				msg := "model stream ended without a done event"
				select {
				case err, ok := <-errs:
					if ok && err != nil {
						msg = err.Error()
					}
				default:
				}
				s.publishError(sessionID, "producer_error", msg)
				return
			}
			if s.handleDelta(streamCtx, sessionID, delta) {
				return
			}
		}
	}
}

// handleDelta publishes one delta and reports whether the stream is over.
func (s *Streamer) handleDelta(ctx context.Context, sessionID string, delta Delta) (done bool) {
	switch delta.Kind {
	case DeltaToken:
		s.publish(sessionID, "token", map[string]string{"text": delta.Token})
		return false

	case DeltaToolCall:
		s.publish(sessionID, "tool_call", map[string]any{
			"id":        delta.ToolCallID,
			"name":      delta.ToolName,
			"arguments": delta.ToolArgs,
		})
		result := s.executor.Execute(ctx, delta.ToolName, delta.ToolArgs)
		s.publish(sessionID, "tool_result", map[string]any{
			"id":      delta.ToolCallID,
			"content": result.Content,
			"isError": result.IsError,
		})
		return false

	case DeltaDone:
		s.publish(sessionID, "done", delta.Usage)
		return true

	default:
		return false
	}
}

func (s *Streamer) publish(sessionID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	s.broker.Publish(sessionID, event, data)
}

func (s *Streamer) publishError(sessionID, code, message string) {
	s.publish(sessionID, "error", map[string]string{"code": code, "message": message})
}
