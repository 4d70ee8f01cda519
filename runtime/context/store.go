// Package context implements the per-workflow Shared Context Store (C5):
// a typed, append-only key/value blackboard with an access log, grounded on
// the teacher's session/inmem mutex-guarded map style generalized from
// per-session to per-workflow scope, with put/get logging added per
// spec.md §4.5.
package context

import (
	"sync"

	"github.com/codeforge/assistant/runtime/apperr"
	"github.com/codeforge/assistant/runtime/domain"
)

// Store is a per-workflow shared context. It is created on workflow start
// and destroyed on terminal state (spec.md §3 ownership rule); callers
// should not retain a Store past its owning workflow's lifetime.
type Store struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64

	entries   map[string]domain.ContextEntry
	totalSize int64
	log       []domain.ContextLogEntry
}

// New constructs an empty Store bounded by maxEntries/maxBytes (spec.md §4.5
// defaults: 256 entries, 4 MiB). Zero values fall back to those defaults.
func New(maxEntries int, maxBytes int64) *Store {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if maxBytes <= 0 {
		maxBytes = 4 * 1024 * 1024
	}
	return &Store{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		entries:    make(map[string]domain.ContextEntry),
	}
}

// Put writes a new key. Keys are globally unique within a workflow: writing
// an existing key is rejected (append-only), matching spec.md §3's
// "keys globally unique within a workflow" invariant. Use Shadow to record a
// losing concurrent write from a parallel group instead of calling Put twice.
func (s *Store) Put(key, agentID string, role domain.AgentRole, value any, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		return apperr.New(apperr.KindPermanent, "shared context key already written: "+key)
	}

	size := approxSize(value) + int64(len(key)) + int64(len(description))
	if len(s.entries) >= s.maxEntries || s.totalSize+size > s.maxBytes {
		return apperr.New(apperr.KindResourceExhausted, "context_full")
	}

	s.entries[key] = domain.ContextEntry{
		Key:         key,
		AgentID:     agentID,
		AgentRole:   role,
		Value:       value,
		Description: description,
		Timestamp:   domain.Now(),
	}
	s.totalSize += size
	s.log = append(s.log, domain.ContextLogEntry{
		Action: domain.ContextLogPut,
		Key:    key,
		Agents: []string{agentID},
		At:     domain.Now(),
	})
	return nil
}

// Shadow records that a write from a parallel-group stage lost the tie-break
// and was not applied (spec.md §4.4 ordering rule: lower stage_id wins).
func (s *Store) Shadow(key, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, domain.ContextLogEntry{
		Action: domain.ContextLogShadowed,
		Key:    key,
		Agents: []string{agentID},
		At:     domain.Now(),
	})
}

// Get reads a key, recording the access in the log, and reports whether it
// was present.
func (s *Store) Get(key, requestingAgent string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	s.log = append(s.log, domain.ContextLogEntry{
		Action: domain.ContextLogGet,
		Key:    key,
		Agents: []string{requestingAgent},
		At:     domain.Now(),
	})
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Snapshot returns a copy of the full entry map, for checkpointing and UI
// diagnostics.
func (s *Store) Snapshot() map[string]domain.ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.ContextEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// AccessLog returns a copy of the access log, exposed read-only to
// subscribers on request (spec.md §4.5).
func (s *Store) AccessLog() []domain.ContextLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ContextLogEntry(nil), s.log...)
}

// Restore replaces the store's contents from a checkpointed snapshot,
// used by resume (spec.md §4.7). It does not replay the access log.
func Restore(maxEntries int, maxBytes int64, entries map[string]domain.ContextEntry) *Store {
	s := New(maxEntries, maxBytes)
	for k, v := range entries {
		s.entries[k] = v
		s.totalSize += approxSize(v.Value) + int64(len(k)) + int64(len(v.Description))
	}
	return s
}

func approxSize(v any) int64 {
	switch val := v.(type) {
	case string:
		return int64(len(val))
	case []byte:
		return int64(len(val))
	default:
		return 64 // fixed estimate for structured values; exactness is not required by spec.md §4.5
	}
}
