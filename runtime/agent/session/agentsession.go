package session

import (
	"fmt"
	"sync"

	"goa.design/goa-ai/runtime/agent/conversation"
)

// Kind discriminates the role a session plays in the agent runtime.
type Kind string

const (
	// KindUser is a top-level session driven by an end user.
	KindUser Kind = "user"
	// KindSubAgent is a nested session created by the subagent tool.
	KindSubAgent Kind = "sub_agent"
	// KindGateway is a session fronting an external protocol adapter
	// (A2A, MCP gateway) rather than a direct chat client.
	KindGateway Kind = "gateway"
)

type (
	// TokenCounters tracks accumulated token usage for a session. The
	// compaction gate does not read it; it estimates the conversation's
	// size instead.
	TokenCounters struct {
		Input  int
		Output int
		Total  int
	}

	// AgentSession is the full per-session state the reply loop, dispatcher,
	// and inspectors operate against: one instance per active conversation,
	// whether top-level or nested.
	AgentSession struct {
		mu sync.Mutex

		id          string
		workingDir  string
		kind        Kind
		conv        *conversation.Conversation
		tokens      TokenCounters
		extensionData map[string]any
	}

	// Update is a fluent patch builder for an AgentSession's mutable fields,
	// applied atomically under the session's lock. Grounded on the teacher's
	// functional-options style elsewhere in the tree, adapted into a builder
	// since callers need to patch a live session rather than construct one.
	Update struct {
		session *AgentSession
		fns     []func(*AgentSession)
	}
)

// NewAgentSession constructs an AgentSession of the given kind rooted at
// workingDir, with an empty conversation.
func NewAgentSession(id, workingDir string, kind Kind) *AgentSession {
	return &AgentSession{
		id:            id,
		workingDir:    workingDir,
		kind:          kind,
		conv:          conversation.New(),
		extensionData: make(map[string]any),
	}
}

// ID returns the session's stable identifier.
func (s *AgentSession) ID() string { return s.id }

// WorkingDir returns the filesystem root tools in this session should
// operate relative to.
func (s *AgentSession) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDir
}

// Kind returns whether this is a user, sub-agent, or gateway session.
func (s *AgentSession) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// Conversation returns the live conversation. Callers that must not observe
// future mutations should call Conversation().Clone().
func (s *AgentSession) Conversation() *conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// Tokens returns a snapshot of the session's accumulated token counters.
func (s *AgentSession) Tokens() TokenCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// AddTokens accumulates usage onto the session's running counters.
func (s *AgentSession) AddTokens(input, output int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens.Input += input
	s.tokens.Output += output
	s.tokens.Total += input + output
}

// ExtensionData returns the value stored under key in the session's
// free-form extension data bag, and whether one was set.
func (s *AgentSession) ExtensionData(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.extensionData[key]
	return v, ok
}

// SetExtensionData stores a value in the session's free-form extension data
// bag, for extension-specific state that does not belong in the core
// AgentSession shape (e.g. a developer extension's per-session CWD history).
func (s *AgentSession) SetExtensionData(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extensionData[key] = value
}

// Patch begins a fluent update against this session.
func (s *AgentSession) Patch() *Update {
	return &Update{session: s}
}

// WorkingDir queues a working-directory change.
func (u *Update) WorkingDir(dir string) *Update {
	u.fns = append(u.fns, func(s *AgentSession) { s.workingDir = dir })
	return u
}

// ExtensionData queues a write into the session's extension data bag.
func (u *Update) ExtensionData(key string, value any) *Update {
	u.fns = append(u.fns, func(s *AgentSession) { s.extensionData[key] = value })
	return u
}

// Apply commits all queued field changes atomically.
func (u *Update) Apply() {
	u.session.mu.Lock()
	defer u.session.mu.Unlock()
	for _, fn := range u.fns {
		fn(u.session)
	}
}

// sessionNotFoundError is returned by Manager.Get when a session id is
// unknown; IsNotFound detects it.
type sessionNotFoundError struct{ id string }

func (e sessionNotFoundError) Error() string { return fmt.Sprintf("session: %q not found", e.id) }

// IsNotFound reports whether err indicates an unknown session id.
func IsNotFound(err error) bool {
	_, ok := err.(sessionNotFoundError)
	return ok
}

// Manager owns the set of live AgentSessions for one runtime instance,
// keyed by session id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*AgentSession
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*AgentSession)}
}

// Create registers a new AgentSession of the given kind and returns it.
// Creating a session under an id that already exists replaces nothing and
// returns the existing session instead.
func (m *Manager) Create(id, workingDir string, kind Kind) *AgentSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing
	}
	s := NewAgentSession(id, workingDir, kind)
	m.sessions[id] = s
	return s
}

// Get returns the session registered under id.
func (m *Manager) Get(id string) (*AgentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, sessionNotFoundError{id: id}
	}
	return s, nil
}

// Remove drops a session from the manager (its conversation and tokens are
// discarded; the caller is responsible for persisting anything durable
// first).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
