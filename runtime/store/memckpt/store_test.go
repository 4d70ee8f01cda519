package memckpt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeforge/assistant/runtime/domain"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	state := domain.WorkflowState{
		WorkflowID:    "wf-1",
		Status:        domain.WorkflowRunning,
		StageStates:   map[domain.StageID]domain.StageState{"s1": domain.StageCompleted},
		StageAttempts: map[domain.StageID]int{"s1": 1},
	}
	require.NoError(t, s.Save(ctx, state))

	loaded, ok, err := s.Load(ctx, "wf-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.WorkflowRunning, loaded.Status)

	loaded.StageStates["s1"] = domain.StageFailed
	reread, _, _ := s.Load(ctx, "wf-1")
	require.Equal(t, domain.StageCompleted, reread.StageStates["s1"], "expected defensive copy on read")
}

func TestLoadMissing(t *testing.T) {
	s := New()
	_, ok, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListPendingExcludesTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, domain.WorkflowState{WorkflowID: "running", Status: domain.WorkflowRunning}))
	require.NoError(t, s.Save(ctx, domain.WorkflowState{WorkflowID: "done", Status: domain.WorkflowCompleted}))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.WorkflowID{"running"}, pending)
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, domain.WorkflowState{WorkflowID: "wf-1", Status: domain.WorkflowRunning}))
	require.NoError(t, s.Delete(ctx, "wf-1"))
	_, ok, err := s.Load(ctx, "wf-1")
	require.NoError(t, err)
	require.False(t, ok)
}
