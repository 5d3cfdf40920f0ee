package toolexecutor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rjsadow/agentproto/internal/telemetry"
	"github.com/rjsadow/agentproto/internal/toolregistry"
)

// Executor validates arguments and invokes a tool's handler with a bounded
// deadline, normalizing every failure mode into an error-result per
// spec.md 4.3. Unlike goa-ai's executor (which routes through a
// Redis-backed gateway and never returns a Go error for tool failures
// either), this is a direct in-process call — but it keeps the same
// "tool failures are results, not protocol errors" philosophy.
type Executor struct {
	registry       *toolregistry.Registry
	defaultTimeout time.Duration
	sink           *telemetry.Sink
}

func NewExecutor(registry *toolregistry.Registry, defaultTimeout time.Duration, sink *telemetry.Sink) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Executor{registry: registry, defaultTimeout: defaultTimeout, sink: sink}
}

type execContext struct {
	ctx context.Context
}

func (e execContext) Done() <-chan struct{} { return e.ctx.Done() }
func (e execContext) Err() error            { return e.ctx.Err() }

// Execute implements spec.md 4.3's algorithm end to end.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) toolregistry.Result {
	var span telemetry.Span
	if e.sink != nil && e.sink.Tracer != nil {
		ctx, span = e.sink.Tracer.Start(ctx, "toolexecutor.execute")
		span.SetAttributes("tool.name", name)
		defer span.End()
	}

	tool, ok := e.registry.Get(name)
	if !ok {
		return toolregistry.TextResult(fmt.Sprintf("unknown tool: %q", name), true)
	}

	if issues := ValidateArgs(tool.InputSchema, args); len(issues) > 0 {
		return toolregistry.TextResult(formatIssues(issues), true)
	}

	timeout := e.defaultTimeout
	if tool.Timeout > 0 {
		timeout = time.Duration(tool.Timeout) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan toolregistry.Result, 1)
	panicCh := make(chan any, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicCh <- r
			}
		}()
		res, err := tool.Handler(execContext{ctx: callCtx}, args)
		if err != nil {
			resultCh <- toolregistry.TextResult(sanitize(err.Error()), true)
			return
		}
		resultCh <- res
	}()

	select {
	case res := <-resultCh:
		return res
	case p := <-panicCh:
		if e.sink != nil && e.sink.Logger != nil {
			e.sink.Logger.Error(ctx, "tool handler panicked", "tool", name, "panic", p)
		}
		return toolregistry.TextResult("internal error executing tool", true)
	case <-callCtx.Done():
		if span != nil {
			span.SetError(callCtx.Err())
		}
		if callCtx.Err() == context.Canceled && ctx.Err() == context.Canceled {
			return toolregistry.TextResult("tool call cancelled", true)
		}
		return toolregistry.TextResult(fmt.Sprintf("tool %q timed out", name), true)
	}
}

func formatIssues(issues []ValidationIssue) string {
	parts := make([]string, 0, len(issues))
	for _, iss := range issues {
		parts = append(parts, fmt.Sprintf("%s: %s", iss.Path, iss.Message))
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}

// sanitize keeps only the first line of a handler error before it reaches
// the client, dropping any multi-line stack trace that follows, per the
// error-handling design's "never a stack trace" rule. Text on the first
// line, including any file path, is kept as is.
func sanitize(msg string) string {
	if idx := strings.Index(msg, "\n"); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}
