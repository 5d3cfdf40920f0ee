package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rjsadow/agentproto/internal/idgen"
	"github.com/rjsadow/agentproto/internal/rpc"
	"github.com/rjsadow/agentproto/internal/telemetry"
)

// unsupportedVersionMsg is the message of the CodeInvalidRequest rpc.Error
// Initialize returns when the requested protocol version isn't in
// SupportedVersions.
const unsupportedVersionMsg = "Unsupported protocol version"

// Manager owns the session map and enforces the
// uninitialized->initializing->ready->shutting_down->closed state
// machine. Shape (mu sync.RWMutex guarding a map, background cleanup
// ticker, Start/Stop) is grounded on the teacher's
// internal/sessions/manager.go.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	supportedVersions map[string]bool
	idleTTL           time.Duration
	cleanupInterval   time.Duration

	stopCh chan struct{}
	log    telemetry.Logger

	shuttingDown bool
}

type Config struct {
	SupportedVersions []string
	IdleTTL           time.Duration
	CleanupInterval   time.Duration
}

func NewManager(cfg Config, log telemetry.Logger) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	supported := make(map[string]bool, len(cfg.SupportedVersions))
	for _, v := range cfg.SupportedVersions {
		supported[v] = true
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		supportedVersions: supported,
		idleTTL:           cfg.IdleTTL,
		cleanupInterval:   cfg.CleanupInterval,
		stopCh:            make(chan struct{}),
		log:               log,
	}
}

// Start launches the idle-session reaper loop, following the teacher's
// Manager.Start/cleanupLoop pattern.
func (m *Manager) Start() {
	go m.cleanupLoop()
}

func (m *Manager) Stop() {
	close(m.stopCh)
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().Add(-m.idleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if sess.LastActivity().Before(cutoff) && !IsTerminalState(sess.State()) {
			sess.transition(StateClosed)
			delete(m.sessions, id)
			if m.log != nil {
				m.log.Info(context.Background(), "session reaped for idleness", "session_id", id)
			}
		}
	}
}

// InitializeParams mirrors the initialize method's request params.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

func fingerprint(params InitializeParams) string {
	b, _ := json.Marshal(params)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Initialize implements spec.md 4.1's initialize operation: creates a
// session in the initializing state, or — when sessionID is non-empty and
// already known — validates idempotent-duplicate semantics.
func (m *Manager) Initialize(sessionID string, params InitializeParams, serverInfo ServerInfo, capabilities map[string]any) (*Session, *rpc.Error) {
	if !m.supportedVersions[params.ProtocolVersion] {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, unsupportedVersionMsg)
	}

	fp := fingerprint(params)

	if sessionID != "" {
		m.mu.RLock()
		existing, ok := m.sessions[sessionID]
		m.mu.RUnlock()
		if ok {
			if IsTerminalState(existing.State()) {
				return nil, rpc.NewError(rpc.CodeInvalidRequest, "session already exists in a terminal state")
			}
			if m.IsShuttingDown() {
				return nil, rpc.NewError(rpc.CodeInvalidRequest, "server is shutting down")
			}
			existing.mu.RLock()
			sameParams := existing.initializeParamsFP == fp
			existing.mu.RUnlock()
			if !sameParams {
				return nil, rpc.NewError(rpc.CodeInvalidRequest, "session already initializing with different parameters")
			}
			return existing, nil
		}
	}

	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "server is shutting down")
	}
	id := sessionID
	if id == "" {
		id = idgen.SessionID()
	}
	now := time.Now()
	sess := &Session{
		id:                 id,
		state:              StateInitializing,
		negotiatedVersion:  params.ProtocolVersion,
		client:             params.ClientInfo,
		createdAt:          now,
		lastActivityAt:     now,
		initializeParamsFP: fp,
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	if m.log != nil {
		m.log.Info(context.Background(), "session initializing", "session_id", id, "protocol_version", params.ProtocolVersion)
	}
	return sess, nil
}

// MarkInitialized handles notifications/initialized: transitions the
// session from initializing to ready.
func (m *Manager) MarkInitialized(sessionID string) *rpc.Error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return rpc.NewError(rpc.CodeInvalidRequest, "unknown session")
	}
	if err := sess.transition(StateReady); err != nil {
		return rpc.NewError(rpc.CodeInvalidRequest, err.Error())
	}
	sess.Touch()
	if m.log != nil {
		m.log.Info(context.Background(), "session ready", "session_id", sessionID)
	}
	return nil
}

// Get returns the session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// RequireReady enforces that a non-initialize, non-notification method
// only proceeds once the session is ready, per spec.md 4.1 ("Any
// tool/resource call before this state returns ... INVALID_REQUEST").
func (m *Manager) RequireReady(sessionID string) (*Session, *rpc.Error) {
	sess, ok := m.Get(sessionID)
	if !ok {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "unknown or missing session")
	}
	if sess.State() != StateReady {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "session is not ready: call notifications/initialized first")
	}
	sess.Touch()
	return sess, nil
}

// BeginShutdown transitions every non-terminal session to shutting_down.
// Subsequent RequireReady/Initialize calls are rejected; in-flight
// requests are drained separately by the shutdown coordinator.
func (m *Manager) BeginShutdown() {
	m.mu.Lock()
	m.shuttingDown = true
	for _, sess := range m.sessions {
		if !IsTerminalState(sess.State()) {
			sess.transition(StateShuttingDown)
		}
	}
	m.mu.Unlock()
}

func (m *Manager) IsShuttingDown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shuttingDown
}

// Close marks a session closed (terminal), e.g. on transport disconnect.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.transition(StateClosed)
		delete(m.sessions, sessionID)
	}
}

// Count reports the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReadySessionIDs returns the ids of every session currently in the ready
// state, the fan-out target set for broker-delivered notifications such as
// notifications/tools/listChanged (spec.md 4.2).
func (m *Manager) ReadySessionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id, sess := range m.sessions {
		if sess.State() == StateReady {
			ids = append(ids, id)
		}
	}
	return ids
}
