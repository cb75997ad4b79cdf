// Package session owns the process-local per-session store: chat history,
// attachments, and artifact memory, keyed by session id with idle-TTL
// eviction. Sessions do not survive process restart (spec.md §9 open
// question, resolved process-local in SPEC_FULL.md).
package session

import (
	"sync"
	"time"

	"lanecore/internal/turnstate"
)

const defaultTTL = 2 * time.Hour

// Store is a mutex-guarded map of live sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*turnstate.Session
	ttl      time.Duration
}

// NewStore creates an empty store. ttl<=0 uses the default idle TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{sessions: make(map[string]*turnstate.Session), ttl: ttl}
}

// GetOrCreate returns the session for id, creating it if absent, and
// refreshes its last-access timestamp.
func (s *Store) GetOrCreate(id string) *turnstate.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = turnstate.NewSession(id)
		s.sessions[id] = sess
	}
	sess.LastAccessAt = time.Now()
	return sess
}

// Get returns the session for id without creating it.
func (s *Store) Get(id string) (*turnstate.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Touch refreshes a session's last-access timestamp.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastAccessAt = time.Now()
	}
}

// Clear removes a session entirely.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// EvictIdle removes every session whose last access predates the TTL, and
// returns the count evicted. Intended to be called periodically from a
// background ticker.
func (s *Store) EvictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.ttl)
	n := 0
	for id, sess := range s.sessions {
		if sess.LastAccessAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
