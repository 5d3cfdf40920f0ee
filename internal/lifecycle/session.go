package lifecycle

import (
	"sync"
	"time"
)

// ClientInfo mirrors the initialize request's clientInfo object.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Session is a single connection's lifecycle record. Ring-buffered SSE
// event storage lives in the sse package, keyed by the same session id, to
// keep the lifecycle/broker concerns decoupled (the teacher keeps
// sessions.Manager and sse.Hub as separate collaborators wired through
// main.go rather than one god-object).
type Session struct {
	mu sync.RWMutex

	id                 string
	state              State
	negotiatedVersion  string
	client             ClientInfo
	createdAt          time.Time
	lastActivityAt     time.Time
	subject            string
	scopes             []string
	eventCounter       uint64
	initializedAtOnce  bool
	initializeParamsFP string // fingerprint of the original initialize params, for idempotent-duplicate detection
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) NegotiatedVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.negotiatedVersion
}

func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

func (s *Session) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.scopes))
	copy(out, s.scopes)
	return out
}

func (s *Session) SetAuth(subject string, scopes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject = subject
	s.scopes = scopes
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivityAt = time.Now()
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivityAt
}

// transition performs the state change under lock, validating the edge.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ValidateTransition(s.id, s.state, to); err != nil {
		return err
	}
	s.state = to
	return nil
}
