// Package shutdown implements the graceful-shutdown sequence: signal
// intake, in-flight request draining, and ordered cleanup handlers, per
// spec.md 4.9. The in-flight tracking set and poll-drain loop are
// grounded on the teacher's internal/sessions/queue.go
// (processLoop/drainOnShutdown ticker-driven polling) generalized from a
// capacity-bounded admission queue to an unbounded in-flight counter.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rjsadow/agentproto/internal/telemetry"
)

// CleanupHandler is one idempotent teardown step, run in registration
// order. Errors are logged, never abort the sequence, per spec.md 4.9.
type CleanupHandler struct {
	Name string
	Run  func(ctx context.Context) error
}

// Coordinator drives the shutdown sequence.
type Coordinator struct {
	inFlight int64

	beginFn func() // e.g. lifecycle.Manager.BeginShutdown
	readyFn func(bool) // flips the health surface's readiness flag

	mu       sync.Mutex
	handlers []CleanupHandler

	timeout      time.Duration
	pollInterval time.Duration

	log telemetry.Logger

	exitFn   func(code int)
	trigger  chan struct{}
	triggerO sync.Once
}

func NewCoordinator(timeout time.Duration, log telemetry.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		timeout:      timeout,
		pollInterval: 100 * time.Millisecond,
		log:          log,
		exitFn:       os.Exit,
		trigger:      make(chan struct{}),
	}
}

// TriggerShutdown begins the same shutdown sequence a signal would, for
// in-process events that should end the process gracefully — e.g. EOF on
// the stdio transport's stdin (spec.md 6's "EOF on stdin triggers
// graceful shutdown"). Safe to call more than once or concurrently with a
// signal; only the first call has any effect.
func (c *Coordinator) TriggerShutdown() {
	c.triggerO.Do(func() { close(c.trigger) })
}

// OnBeginShutdown registers the callback invoked to transition all
// sessions to shutting_down, and a readiness-flag setter.
func (c *Coordinator) OnBeginShutdown(beginFn func(), readyFn func(bool)) {
	c.beginFn = beginFn
	c.readyFn = readyFn
}

// Register appends a cleanup handler, run in registration order.
func (c *Coordinator) Register(h CleanupHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// Track marks one request in-flight; the returned function must be called
// exactly once (typically deferred) when the request completes.
func (c *Coordinator) Track() (untrack func()) {
	atomic.AddInt64(&c.inFlight, 1)
	var once sync.Once
	return func() {
		once.Do(func() {
			atomic.AddInt64(&c.inFlight, -1)
		})
	}
}

func (c *Coordinator) InFlightCount() int64 {
	return atomic.LoadInt64(&c.inFlight)
}

// Run installs signal handlers and blocks until a full shutdown sequence
// completes or the process is force-exited by a second signal. Intended
// to be called from main as the last statement before returning.
func (c *Coordinator) Run(ctx context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-ctx.Done():
	case <-c.trigger:
	}

	go func() {
		<-sigCh
		if c.log != nil {
			c.log.Warn(context.Background(), "second shutdown signal received, forcing exit")
		}
		c.exitFn(1)
	}()

	c.shutdown()
	c.exitFn(0)
}

func (c *Coordinator) shutdown() {
	background := context.Background()

	if c.readyFn != nil {
		c.readyFn(false)
	}
	if c.beginFn != nil {
		c.beginFn()
	}

	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for c.InFlightCount() > 0 && time.Now().Before(deadline) {
		<-ticker.C
	}

	c.mu.Lock()
	handlers := append([]CleanupHandler(nil), c.handlers...)
	c.mu.Unlock()

	for _, h := range handlers {
		cleanupCtx, cancel := context.WithTimeout(background, c.timeout)
		if err := h.Run(cleanupCtx); err != nil && c.log != nil {
			c.log.Error(background, "cleanup handler failed", "handler", h.Name, "error", err)
		}
		cancel()
	}
}
