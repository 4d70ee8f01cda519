package orchestrator

import (
	"context"
	"sync"

	"github.com/codeforge/assistant/runtime/domain"
)

// Checkpointer persists WorkflowState snapshots so a workflow can resume
// after a process restart (spec.md §4.7 "Durability"). The C9 Session &
// Workflow Store package provides the production-grade backends (mongo,
// postgres); Orchestrator depends only on this narrow interface so
// it never imports a storage driver directly.
type Checkpointer interface {
	Save(ctx context.Context, state domain.WorkflowState) error
	Load(ctx context.Context, workflowID domain.WorkflowID) (domain.WorkflowState, bool, error)
}

// MemoryCheckpointer is the default Checkpointer: an in-process map, used in
// tests and whenever CheckpointBackend=memory. It is not durable across
// process restarts.
type MemoryCheckpointer struct {
	mu    sync.Mutex
	saved map[domain.WorkflowID]domain.WorkflowState
}

// NewMemoryCheckpointer constructs an empty MemoryCheckpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{saved: make(map[domain.WorkflowID]domain.WorkflowState)}
}

func (m *MemoryCheckpointer) Save(_ context.Context, state domain.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[state.WorkflowID] = state.Clone()
	return nil
}

func (m *MemoryCheckpointer) Load(_ context.Context, workflowID domain.WorkflowID) (domain.WorkflowState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saved[workflowID]
	if !ok {
		return domain.WorkflowState{}, false, nil
	}
	return s.Clone(), true, nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, state *domain.WorkflowState) {
	state.UpdatedAt = domain.Now()
	if err := o.Checkpoints.Save(ctx, *state); err != nil {
		o.Telemetry.Logger.Warn(ctx, "checkpoint save failed", "workflow_id", state.WorkflowID, "err", err)
	}
}
