package framework

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is one conversation context. It owns its StreamState and at most one
// pending HITL request. The processing flag guards against overlapping sends.
type Session struct {
	id        string
	createdAt time.Time
	state     *StreamState

	processing atomic.Bool

	mu      sync.Mutex
	pending *PendingHitlRequest
}

// NewSession creates a session with a fresh identifier.
func NewSession(markers Markers) *Session {
	return &Session{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		state:     NewStreamState(markers),
	}
}

// ID returns the session identifier sent with every request.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State exposes the stream accumulators. Only the request holding the
// processing flag may mutate it.
func (s *Session) State() *StreamState { return s.state }

// TryBegin marks the session as processing. It returns false when a request is
// already in flight.
func (s *Session) TryBegin() bool {
	return s.processing.CompareAndSwap(false, true)
}

// End clears the processing flag.
func (s *Session) End() {
	s.processing.Store(false)
}

// IsProcessing reports whether a request is in flight.
func (s *Session) IsProcessing() bool {
	return s.processing.Load()
}

// Pending returns the outstanding confirmation request, if any.
func (s *Session) Pending() *PendingHitlRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetPending stores req in the pending slot and returns the request it
// replaced.
func (s *Session) SetPending(req *PendingHitlRequest) *PendingHitlRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.pending
	s.pending = req
	return prev
}

// TakePending clears the pending slot and returns its previous value.
func (s *Session) TakePending() *PendingHitlRequest {
	return s.SetPending(nil)
}

// SessionArena maps session identifiers to sessions.
type SessionArena struct {
	mu       sync.RWMutex
	markers  Markers
	sessions map[string]*Session
}

// NewSessionArena builds an empty arena whose sessions use markers.
func NewSessionArena(markers Markers) *SessionArena {
	return &SessionArena{
		markers:  markers.normalized(),
		sessions: make(map[string]*Session),
	}
}

// Create registers and returns a new session.
func (a *SessionArena) Create() *Session {
	sess := NewSession(a.markers)
	a.mu.Lock()
	a.sessions[sess.id] = sess
	a.mu.Unlock()
	return sess
}

// Get looks up a session by id.
func (a *SessionArena) Get(id string) (*Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	sess, ok := a.sessions[id]
	return sess, ok
}

// Delete removes a session. It reports whether the session existed.
func (a *SessionArena) Delete(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[id]; !ok {
		return false
	}
	delete(a.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (a *SessionArena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}
