package chatstream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rjsadow/agentproto/internal/cancel"
	"github.com/rjsadow/agentproto/internal/sse"
	"github.com/rjsadow/agentproto/internal/toolexecutor"
	"github.com/rjsadow/agentproto/internal/toolregistry"
)

type scriptedProducer struct {
	deltas []Delta
	err    error
}

func (p scriptedProducer) Stream(ctx context.Context, messages []Message) (<-chan Delta, <-chan error) {
	out := make(chan Delta, len(p.deltas))
	errs := make(chan error, 1)
	for _, d := range p.deltas {
		out <- d
	}
	close(out)
	if p.err != nil {
		errs <- p.err
	}
	close(errs)
	return out, errs
}

func newTestExecutor(t *testing.T) *toolexecutor.Executor {
	t.Helper()
	reg := toolregistry.NewRegistry()
	_ = reg.Register(toolregistry.Tool{
		Name:        "echo",
		Description: "echoes",
		InputSchema: map[string]any{"type": "object"},
		Handler: func(ctx toolregistry.ExecContext, args map[string]any) (toolregistry.Result, error) {
			return toolregistry.TextResult("echoed", false), nil
		},
	})
	return toolexecutor.NewExecutor(reg, time.Second, nil)
}

// collectFromHandle reads want events off handle, having already been
// attached before the producer started publishing.
func collectFromHandle(t *testing.T, handle *sse.Handle, want int) []sse.Event {
	t.Helper()
	var got []sse.Event
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case ev := <-handle.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for %d events, got %d", want, len(got))
		}
	}
	return got
}

func TestRunPublishesTokensThenDone(t *testing.T) {
	broker := sse.NewBroker()
	streamer := NewStreamer(scriptedProducer{deltas: []Delta{
		{Kind: DeltaToken, Token: "hel"},
		{Kind: DeltaToken, Token: "lo"},
		{Kind: DeltaDone, Usage: &Usage{PromptTokens: 1, CompletionTokens: 2}},
	}}, newTestExecutor(t), broker, cancel.NewCoordinator())

	sessionID := "sess-1"
	_, handle := broker.Attach(sessionID, 0, nil)
	defer handle.Close()

	done := make(chan struct{})
	go func() {
		streamer.Run(context.Background(), sessionID, ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
		close(done)
	}()

	events := collectFromHandle(t, handle, 3)
	<-done

	if events[0].Name != "token" || events[1].Name != "token" {
		t.Errorf("expected two token events first, got %+v", events[:2])
	}
	if events[2].Name != "done" {
		t.Errorf("expected the stream to end with done, got %q", events[2].Name)
	}
}

func TestRunExecutesToolCallsAndPublishesResult(t *testing.T) {
	broker := sse.NewBroker()
	streamer := NewStreamer(scriptedProducer{deltas: []Delta{
		{Kind: DeltaToolCall, ToolCallID: "c1", ToolName: "echo", ToolArgs: map[string]any{}},
		{Kind: DeltaDone},
	}}, newTestExecutor(t), broker, cancel.NewCoordinator())

	sessionID := "sess-2"
	_, handle := broker.Attach(sessionID, 0, nil)
	defer handle.Close()

	done := make(chan struct{})
	go func() {
		streamer.Run(context.Background(), sessionID, ChatRequest{})
		close(done)
	}()

	events := collectFromHandle(t, handle, 3)
	<-done

	if events[0].Name != "tool_call" {
		t.Errorf("events[0].Name = %q, want tool_call", events[0].Name)
	}
	if events[1].Name != "tool_result" {
		t.Errorf("events[1].Name = %q, want tool_result", events[1].Name)
	}
	var resultPayload map[string]any
	if err := json.Unmarshal(events[1].Data, &resultPayload); err != nil {
		t.Fatalf("invalid tool_result payload: %v", err)
	}
	if resultPayload["isError"] == true {
		t.Errorf("expected a successful tool_result, got %+v", resultPayload)
	}
}

func TestRunPublishesErrorOnProducerError(t *testing.T) {
	broker := sse.NewBroker()
	producerErr := errString("boom")
	streamer := NewStreamer(scriptedProducer{err: producerErr}, newTestExecutor(t), broker, cancel.NewCoordinator())

	sessionID := "sess-3"
	_, handle := broker.Attach(sessionID, 0, nil)
	defer handle.Close()

	done := make(chan struct{})
	go func() {
		streamer.Run(context.Background(), sessionID, ChatRequest{})
		close(done)
	}()

	events := collectFromHandle(t, handle, 1)
	<-done

	if events[0].Name != "error" {
		t.Errorf("events[0].Name = %q, want error", events[0].Name)
	}
}

func TestRunPublishesCancelledOnContextCancellation(t *testing.T) {
	broker := sse.NewBroker()
	blocking := make(chan Delta)
	errs := make(chan error)
	streamer := NewStreamer(blockingProducer{deltas: blocking, errs: errs}, newTestExecutor(t), broker, cancel.NewCoordinator())

	sessionID := "sess-4"
	_, handle := broker.Attach(sessionID, 0, nil)
	defer handle.Close()

	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		streamer.Run(ctx, sessionID, ChatRequest{})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancelCtx()

	events := collectFromHandle(t, handle, 1)
	<-done

	if events[0].Name != "error" {
		t.Errorf("events[0].Name = %q, want error (cancelled)", events[0].Name)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

type blockingProducer struct {
	deltas chan Delta
	errs   chan error
}

func (p blockingProducer) Stream(ctx context.Context, messages []Message) (<-chan Delta, <-chan error) {
	return p.deltas, p.errs
}
