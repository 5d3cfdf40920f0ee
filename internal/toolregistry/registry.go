// Package toolregistry maintains the insertion-ordered tool catalogue,
// opaque paginated listing, and change-notification subscriptions. The
// subscribe/unsubscribe shape is grounded on the teacher's
// SessionRecorder/OnEvent fan-out in internal/sessions/recording.go,
// generalized from session lifecycle events to catalogue mutation events.
package toolregistry

import (
	"fmt"
	"regexp"
	"sync"
)

var nameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Annotations mirrors the optional tool hints in the data model.
type Annotations struct {
	ReadOnlyHint    *bool `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool `json:"openWorldHint,omitempty"`
}

// Handler is the tool's callable, invoked by the executor with validated
// arguments.
type Handler func(ctx ExecContext, args map[string]any) (Result, error)

// ExecContext carries per-invocation metadata into a handler without
// forcing every handler to import context directly at the call site; it
// is the Done/Err subset of context.Context, so handlers can still select
// on it and any context.Context satisfies it.
type ExecContext interface {
	Done() <-chan struct{}
	Err() error
}

// Result is the tool's own result shape, pass-through from spec.md 4.3
// step 5.
type Result struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func TextResult(text string, isError bool) Result {
	return Result{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: isError}
}

// Tool is one catalogue entry.
type Tool struct {
	Name        string
	Title       string
	Description string
	InputSchema map[string]any
	Annotations *Annotations
	Handler     Handler
	Timeout     int64 // seconds; 0 means "use executor default"
}

func (t Tool) validate() error {
	if !nameRE.MatchString(t.Name) {
		return fmt.Errorf("toolregistry: invalid tool name %q", t.Name)
	}
	if t.Description == "" {
		return fmt.Errorf("toolregistry: tool %q missing description", t.Name)
	}
	if t.InputSchema == nil {
		return fmt.Errorf("toolregistry: tool %q missing input schema", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("toolregistry: tool %q missing handler", t.Name)
	}
	return nil
}

// Event is published to subscribers on any catalogue mutation.
type Event struct {
	Kind string // "registered" | "unregistered"
	Name string
}

// Registry is the insertion-ordered catalogue.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byName map[string]Tool
	epoch uint64

	subMu sync.Mutex
	subs  map[int]func(Event)
	nextSubID int
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
		subs:   make(map[int]func(Event)),
	}
}

// Register adds a tool, failing if the name is taken or invalid.
func (r *Registry) Register(t Tool) error {
	if err := t.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	if _, exists := r.byName[t.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("toolregistry: tool %q already registered", t.Name)
	}
	r.byName[t.Name] = t
	r.order = append(r.order, t.Name)
	r.epoch++
	r.mu.Unlock()

	r.publish(Event{Kind: "registered", Name: t.Name})
	return nil
}

// Unregister removes a tool, reporting whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	if _, exists := r.byName[name]; !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.epoch++
	r.mu.Unlock()

	r.publish(Event{Kind: "unregistered", Name: name})
	return true
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Epoch returns the current catalogue mutation epoch, used by the cursor
// codec to detect staleness.
func (r *Registry) Epoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}

// snapshot returns the ordered tool list and the epoch it was taken at.
func (r *Registry) snapshot() ([]Tool, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out, r.epoch
}

// Subscribe registers a callback invoked on every mutation; the returned
// function unsubscribes it. Callbacks are held in a map keyed by
// subscription id under a mutex, so the order in which subscribers are
// called is not defined.
func (r *Registry) Subscribe(cb func(Event)) (unsubscribe func()) {
	r.subMu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subs[id] = cb
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) publish(ev Event) {
	r.subMu.Lock()
	cbs := make([]func(Event), 0, len(r.subs))
	for _, cb := range r.subs {
		cbs = append(cbs, cb)
	}
	r.subMu.Unlock()

	// Fire outside the subscriber-map lock, matching the data-model rule
	// that mutations "publish an event, outside the lock."
	for _, cb := range cbs {
		cb(ev)
	}
}
