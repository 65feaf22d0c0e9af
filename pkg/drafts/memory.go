package drafts

import (
	"context"
	"sync"
	"time"

	"github.com/kgcorpus/tagging-console/pkg/editor"
	"github.com/kgcorpus/tagging-console/pkg/metrics"
)

// MemoryStore keeps drafts in process memory. Drafts are lost on restart
// and are not shared between replicas.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	locks    *keyedMutex
}

type memorySession struct {
	drafts  map[int]Draft
	expires time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store. A session's drafts expire ttl
// after its last write; ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration, m *metrics.Metrics) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
		metrics:  m,
		locks:    newKeyedMutex(),
	}
}

func (s *MemoryStore) Get(ctx context.Context, sid string, sentenceID int) (*Draft, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveLocked(sid)
	if sess == nil {
		return nil, notFound(sentenceID)
	}
	d, ok := sess.drafts[sentenceID]
	if !ok {
		return nil, notFound(sentenceID)
	}
	if d.Snapshot.Sentence != nil {
		d.Snapshot.Sentence = d.Snapshot.Sentence.Clone()
	}
	return &d, nil
}

func (s *MemoryStore) Put(ctx context.Context, sid string, snap editor.Snapshot) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	if snap.Sentence != nil {
		snap.Sentence = snap.Sentence.Clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := s.liveLocked(sid)
	if sess == nil {
		sess = &memorySession{drafts: make(map[int]Draft)}
		s.sessions[sid] = sess
	}
	sess.drafts[snap.SentenceID] = Draft{Snapshot: snap, UpdatedAt: now}
	sess.expires = now.Add(s.ttl)
	s.reportLocked()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sid string, sentenceID int) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sid]; ok {
		delete(sess.drafts, sentenceID)
		if len(sess.drafts) == 0 {
			delete(s.sessions, sid)
		}
	}
	s.reportLocked()
	return nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sid string) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
	s.reportLocked()
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for sid, sess := range s.sessions {
		if !now.Before(sess.expires) {
			delete(s.sessions, sid)
			n++
		}
	}
	s.reportLocked()
	return n
}

// Len returns the number of stored drafts.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lenLocked()
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// liveLocked returns the session's drafts, dropping them if expired.
func (s *MemoryStore) liveLocked(sid string) *memorySession {
	sess, ok := s.sessions[sid]
	if !ok {
		return nil
	}
	if !s.now().Before(sess.expires) {
		delete(s.sessions, sid)
		s.reportLocked()
		return nil
	}
	return sess
}

func (s *MemoryStore) lenLocked() int {
	n := 0
	for _, sess := range s.sessions {
		n += len(sess.drafts)
	}
	return n
}

func (s *MemoryStore) reportLocked() {
	s.metrics.SetDrafts(s.lenLocked())
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
