// Package store holds the in-memory conversation state: per-conversation
// message buffers and the digest subscription set. State is ephemeral by
// design and lost on restart.
package store

import (
	"sync"
	"time"
)

// Message is one buffered chat entry. Text may be empty for non-text
// updates; such entries count toward message totals but are excluded from
// summarization input.
type Message struct {
	Text      string
	Author    string
	Timestamp time.Time
}

// Store is the narrow surface the summarization pipeline and the transport
// depend on. The in-memory implementation below is one interchangeable
// backend; a bounded-retention or persistent one can replace it without
// touching the pipeline.
type Store interface {
	// Append adds a message to the conversation's buffer. O(1) amortized;
	// buffers are created lazily and grow without bound.
	Append(conversationID int64, msg Message)

	// All returns the full ordered log for a conversation as a copy, or an
	// empty slice when the conversation is unknown.
	All(conversationID int64) []Message

	// Clear empties the conversation's buffer and returns the number of
	// entries removed.
	Clear(conversationID int64) int

	// Len returns the number of buffered entries for a conversation.
	Len(conversationID int64) int
}

// buffer is one conversation's log with its own lock, so appends in one chat
// never contend with reads or appends in another.
type buffer struct {
	mu      sync.Mutex
	entries []Message
}

// Memory is the in-memory Store implementation. The map is guarded by a
// short RWMutex; each buffer carries its own mutex for entry access.
type Memory struct {
	mu      sync.RWMutex
	buffers map[int64]*buffer
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buffers: make(map[int64]*buffer)}
}

// bucket returns the buffer for a conversation, creating it on first use.
func (m *Memory) bucket(conversationID int64) *buffer {
	m.mu.RLock()
	b := m.buffers[conversationID]
	m.mu.RUnlock()
	if b != nil {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b = m.buffers[conversationID]; b == nil {
		b = &buffer{}
		m.buffers[conversationID] = b
	}
	return b
}

// peek returns the buffer without creating one. Nil when the conversation
// has never been seen.
func (m *Memory) peek(conversationID int64) *buffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buffers[conversationID]
}

func (m *Memory) Append(conversationID int64, msg Message) {
	b := m.bucket(conversationID)
	b.mu.Lock()
	b.entries = append(b.entries, msg)
	b.mu.Unlock()
}

func (m *Memory) All(conversationID int64) []Message {
	b := m.peek(conversationID)
	if b == nil {
		return []Message{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.entries))
	copy(out, b.entries)
	return out
}

func (m *Memory) Clear(conversationID int64) int {
	b := m.peek(conversationID)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := len(b.entries)
	b.entries = nil
	return removed
}

func (m *Memory) Len(conversationID int64) int {
	b := m.peek(conversationID)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
