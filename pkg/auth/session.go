package auth

import (
	"sync"
)

// Session is the single source of truth for the current identity.
// Subscribers are notified synchronously on every change, so a guard
// decision made after Set or Clear returns already sees the new state.
type Session struct {
	mu      sync.Mutex
	current *Identity
	subs    map[int]func(*Identity)
	nextSub int
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{subs: make(map[int]func(*Identity))}
}

// Current returns the signed-in identity, or nil.
func (s *Session) Current() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set replaces the identity and notifies subscribers.
func (s *Session) Set(id *Identity) {
	s.mu.Lock()
	s.current = id
	subs := s.snapshotLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(id)
	}
}

// Clear signs out and notifies subscribers with nil.
func (s *Session) Clear() { s.Set(nil) }

// Subscribe registers fn for changes and returns a function removing it.
func (s *Session) Subscribe(fn func(*Identity)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) snapshotLocked() []func(*Identity) {
	out := make([]func(*Identity), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
