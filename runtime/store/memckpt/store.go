// Package memckpt provides an in-memory store.WorkflowCheckpoint. It is
// intended for tests and local development; production deployments should
// use runtime/store/mongockpt or runtime/store/pgckpt.
package memckpt

import (
	"context"
	"sync"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/store"
)

// Store is a mutex-guarded map of the latest WorkflowState per workflow id.
type Store struct {
	mu    sync.Mutex
	saved map[domain.WorkflowID]domain.WorkflowState
}

// New returns an empty Store.
func New() *Store {
	return &Store{saved: make(map[domain.WorkflowID]domain.WorkflowState)}
}

func (s *Store) Save(_ context.Context, state domain.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[state.WorkflowID] = state.Clone()
	return nil
}

func (s *Store) Load(_ context.Context, workflowID domain.WorkflowID) (domain.WorkflowState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.saved[workflowID]
	if !ok {
		return domain.WorkflowState{}, false, nil
	}
	return st.Clone(), true, nil
}

func (s *Store) Delete(_ context.Context, workflowID domain.WorkflowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, workflowID)
	return nil
}

func (s *Store) ListPending(_ context.Context) ([]domain.WorkflowID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []domain.WorkflowID
	for id, st := range s.saved {
		if !st.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var _ store.WorkflowCheckpoint = (*Store)(nil)
