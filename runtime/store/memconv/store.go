// Package memconv provides an in-memory store.ConversationStore.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (runtime/store/mongoconv or
// runtime/store/sqliteconv).
package memconv

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/store"
)

// Store is an in-memory, LRU-trackable implementation of
// store.ConversationStore. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	records  map[domain.SessionID]store.ConversationRecord
	lru      map[domain.SessionID]*list.Element
	accessed *list.List // front = most recently touched
	flush    FlushFunc
}

// FlushFunc persists a record to a durable backend before Sweep drops it
// from memory, matching spec.md §5's "evictions flush state to disk before
// dropping in-memory copies." A nil FlushFunc (the default) makes eviction
// lossy, which is acceptable for tests but not for a production deployment
// relying on memconv as anything but a cache in front of a durable store.
type FlushFunc func(ctx context.Context, rec store.ConversationRecord) error

// New returns an empty Store. flush, if non-nil, is called for every
// session Sweep evicts, before it is dropped from memory.
func New(flush FlushFunc) *Store {
	return &Store{
		records:  make(map[domain.SessionID]store.ConversationRecord),
		lru:      make(map[domain.SessionID]*list.Element),
		accessed: list.New(),
		flush:    flush,
	}
}

func (s *Store) touchLocked(sessionID domain.SessionID) {
	if el, ok := s.lru[sessionID]; ok {
		s.accessed.MoveToFront(el)
		return
	}
	s.lru[sessionID] = s.accessed.PushFront(sessionID)
}

func (s *Store) Get(_ context.Context, sessionID domain.SessionID) (store.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return store.ConversationRecord{}, store.ErrSessionNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) List(_ context.Context, limit int) ([]domain.SessionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]domain.SessionID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.records[ids[i]].UpdatedAt.After(s.records[ids[j]].UpdatedAt)
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) getOrCreateLocked(sessionID domain.SessionID, now time.Time) store.ConversationRecord {
	rec, ok := s.records[sessionID]
	if !ok {
		rec = store.ConversationRecord{SessionID: sessionID, CreatedAt: now}
	}
	rec.UpdatedAt = now
	return rec
}

func (s *Store) AppendMessage(_ context.Context, sessionID domain.SessionID, turn domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := domain.Now()
	rec := s.getOrCreateLocked(sessionID, now)
	rec.Messages = append(rec.Messages, turn)
	s.records[sessionID] = rec
	s.touchLocked(sessionID)
	return nil
}

func (s *Store) AppendArtifact(_ context.Context, sessionID domain.SessionID, artifact domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := domain.Now()
	rec := s.getOrCreateLocked(sessionID, now)
	rec.Artifacts = append(rec.Artifacts, artifact)
	s.records[sessionID] = rec
	s.touchLocked(sessionID)
	return nil
}

func (s *Store) AppendSummary(_ context.Context, sessionID domain.SessionID, summary store.WorkflowSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := domain.Now()
	rec := s.getOrCreateLocked(sessionID, now)
	rec.Summaries = append(rec.Summaries, summary)
	s.records[sessionID] = rec
	s.touchLocked(sessionID)
	return nil
}

func (s *Store) Touch(_ context.Context, sessionID domain.SessionID, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	rec.UpdatedAt = t
	s.records[sessionID] = rec
	s.touchLocked(sessionID)
	return nil
}

// Sweep implements store.Evictor: sessions beyond maxSessions (least
// recently touched first) or idle longer than ttl are flushed (if a
// FlushFunc was configured) and dropped.
func (s *Store) Sweep(ctx context.Context, maxSessions int, ttl time.Duration) ([]domain.SessionID, error) {
	s.mu.Lock()
	now := domain.Now()
	excess := 0
	if maxSessions > 0 && len(s.records) > maxSessions {
		excess = len(s.records) - maxSessions
	}
	var candidates []domain.SessionID
	seen := make(map[domain.SessionID]bool)
	for el := s.accessed.Back(); el != nil && len(candidates) < excess; el = el.Prev() {
		id := el.Value.(domain.SessionID)
		candidates = append(candidates, id)
		seen[id] = true
	}
	if ttl > 0 {
		for el := s.accessed.Back(); el != nil; el = el.Prev() {
			id := el.Value.(domain.SessionID)
			if seen[id] {
				continue
			}
			if now.Sub(s.records[id].UpdatedAt) > ttl {
				candidates = append(candidates, id)
				seen[id] = true
			}
		}
	}
	toFlush := make([]store.ConversationRecord, 0, len(candidates))
	for _, id := range candidates {
		toFlush = append(toFlush, cloneRecord(s.records[id]))
	}
	s.mu.Unlock()

	evicted := make([]domain.SessionID, 0, len(candidates))
	for i, id := range candidates {
		if s.flush != nil {
			if err := s.flush(ctx, toFlush[i]); err != nil {
				continue
			}
		}
		s.mu.Lock()
		if el, ok := s.lru[id]; ok {
			s.accessed.Remove(el)
			delete(s.lru, id)
		}
		delete(s.records, id)
		s.mu.Unlock()
		evicted = append(evicted, id)
	}
	return evicted, nil
}

func cloneRecord(in store.ConversationRecord) store.ConversationRecord {
	out := in
	out.Messages = append([]domain.ConversationTurn(nil), in.Messages...)
	out.Artifacts = append([]domain.Artifact(nil), in.Artifacts...)
	out.Summaries = append([]store.WorkflowSummary(nil), in.Summaries...)
	return out
}

var _ store.ConversationStore = (*Store)(nil)
var _ store.Evictor = (*Store)(nil)
