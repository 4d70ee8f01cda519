package memconv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/store"
)

func TestAppendAndGet(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, "sess-1", domain.ConversationTurn{Role: "user", Content: "hi"}))
	require.NoError(t, s.AppendArtifact(ctx, "sess-1", domain.Artifact{RelativePath: "main.go"}))
	require.NoError(t, s.AppendSummary(ctx, "sess-1", store.WorkflowSummary{WorkflowID: "wf-1", Summary: "done"}))

	rec, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, rec.Messages, 1)
	require.Len(t, rec.Artifacts, 1)
	require.Len(t, rec.Summaries, 1)

	rec.Messages[0].Content = "mutated"
	reread, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "hi", reread.Messages[0].Content, "expected defensive copy on read")
}

func TestGetUnknownSession(t *testing.T) {
	s := New(nil)
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSweepOverCap(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	for _, id := range []domain.SessionID{"a", "b", "c"} {
		require.NoError(t, s.AppendMessage(ctx, id, domain.ConversationTurn{Role: "user", Content: "x"}))
	}

	evicted, err := s.Sweep(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	require.Equal(t, domain.SessionID("a"), evicted[0], "expected least-recently-touched session evicted first")

	_, err = s.Get(ctx, "a")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = s.Get(ctx, "c")
	require.NoError(t, err)
}

func TestSweepFlushesBeforeDropping(t *testing.T) {
	var flushed []domain.SessionID
	s := New(func(_ context.Context, rec store.ConversationRecord) error {
		flushed = append(flushed, rec.SessionID)
		return nil
	})
	ctx := context.Background()
	require.NoError(t, s.AppendMessage(ctx, "idle", domain.ConversationTurn{Role: "user", Content: "x"}))
	require.NoError(t, s.Touch(ctx, "idle", domain.Now().Add(-2*time.Hour)))

	evicted, err := s.Sweep(ctx, 0, time.Hour)
	require.NoError(t, err)
	require.Equal(t, []domain.SessionID{"idle"}, evicted)
	require.Equal(t, []domain.SessionID{"idle"}, flushed)
}
