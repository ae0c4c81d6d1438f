// Package session holds the conversation history shared by the LLM calls of
// one analyst session.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/fundgraph/llm"
)

// History is an append-only, ordered list of chat messages. Every LLM call
// of a session sees the full history, and every prompt and reply is appended
// to it. It is safe for concurrent use.
type History struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	messages []llm.Message
}

// New returns a history seeded with the system prompt and the standing
// feedback on query structure.
func New() *History {
	return NewHistory(
		llm.System(SystemPrompt),
		llm.User(semicolonFeedback),
		llm.User(practicesFeedback),
		llm.User(parameterFeedback),
	)
}

// NewHistory returns a history holding exactly the given messages.
func NewHistory(seed ...llm.Message) *History {
	h := &History{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
	h.messages = append(h.messages, seed...)
	return h
}

// Append adds messages to the end of the history.
func (h *History) Append(msgs ...llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Messages returns a snapshot of the history.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// With returns a snapshot of the history followed by extra, without
// modifying the history.
func (h *History) With(extra ...llm.Message) []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, 0, len(h.messages)+len(extra))
	out = append(out, h.messages...)
	return append(out, extra...)
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Last returns the most recent message.
func (h *History) Last() (llm.Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 {
		return llm.Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// SeedLen is the number of messages in a history returned by New.
const SeedLen = 4

// Manager keeps histories by ID for servers that serve many sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*History
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*History)}
}

// Create starts a new seeded session.
func (m *Manager) Create() *History {
	h := New()
	m.mu.Lock()
	m.sessions[h.ID] = h
	m.mu.Unlock()
	return h
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*History, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.sessions[id]
	return h, ok
}

// GetOrCreate returns the session with the given ID, or a new one when id is
// empty or unknown.
func (m *Manager) GetOrCreate(id string) *History {
	if id != "" {
		if h, ok := m.Get(id); ok {
			return h
		}
	}
	return m.Create()
}

// Delete forgets a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
