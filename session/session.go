// Package session owns the lifecycle of realtime conversation sessions:
// creation against a pooled or dedicated connection, lazy TTL expiry,
// background sweeps and utilization reporting.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/christianmcgivern/tech-app/realtime"
)

// State is the session lifecycle state.
type State int

const (
	// StateInitializing is the state between allocation and a bound
	// connection.
	StateInitializing State = iota
	// StateActive is a usable session.
	StateActive
	// StateExpired is terminal; the session must be purged before reuse.
	StateExpired
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// transitions is the explicit lifecycle table; anything not listed is
// rejected.
var transitions = map[State][]State{
	StateInitializing: {StateActive, StateExpired},
	StateActive:       {StateExpired},
	StateExpired:      {},
}

// CanTransition reports whether the move from s to target is legal.
func (s State) CanTransition(target State) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Session binds a caller's logical conversation to a realtime connection.
// It is owned exclusively by the Registry and never outlives its registry
// entry.
type Session struct {
	ID        string
	Config    realtime.Config
	CreatedAt time.Time

	// Conn is the dedicated connection, nil for pooled sessions. Pooled
	// sessions re-acquire from the pool per operation and own nothing.
	Conn   *realtime.Conn
	Pooled bool

	mu             sync.Mutex
	lastActive     time.Time
	state          State
	conversationID string
	metadata       map[string]any
}

func newSession(id string, cfg realtime.Config) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Config:     cfg,
		CreatedAt:  now,
		lastActive: now,
		state:      StateInitializing,
		metadata:   make(map[string]any),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to target, rejecting illegal moves.
func (s *Session) transition(target State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransition(target) {
		return fmt.Errorf("illegal session transition %s -> %s", s.state, target)
	}
	s.state = target
	return nil
}

// Touch refreshes the last-active timestamp. Last-active is monotonically
// non-decreasing while the session is referenced.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the last-active timestamp.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Expired reports whether the session's idle time exceeds ttl.
func (s *Session) Expired(ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive) > ttl
}

// ConversationID returns the conversation correlation id.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetConversationID records the conversation correlation id.
func (s *Session) SetConversationID(id string) {
	s.mu.Lock()
	s.conversationID = id
	s.mu.Unlock()
}

// SetMetadata stores a free-form metadata value.
func (s *Session) SetMetadata(key string, value any) {
	s.mu.Lock()
	s.metadata[key] = value
	s.mu.Unlock()
}

// Metadata returns a metadata value.
func (s *Session) Metadata(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.metadata[key]
	return v, ok
}
