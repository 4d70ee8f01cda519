// Package store defines the Session & Workflow Store (C9): durable
// persistence for conversation history and suspended workflow state. The two
// concerns are kept separate, matching spec.md §4.9 — a ConversationStore for
// per-session messages/artifacts/summaries, and a WorkflowCheckpoint for
// transactional WorkflowState snapshots keyed by workflow_id (each Save
// replaces the previous snapshot).
//
// Each interface ships three interchangeable backends: an in-memory default
// for tests and local development (memconv, memckpt), a MongoDB-backed
// implementation for production (mongoconv, mongockpt), and one more
// alternate backend per store (sqliteconv for zero-dependency local
// persistence, pgckpt for a transactional SQL alternative to Mongo).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/codeforge/assistant/runtime/domain"
)

// ErrSessionNotFound indicates a session has no durable record.
var ErrSessionNotFound = errors.New("store: session not found")

// ErrWorkflowNotFound indicates a workflow has no saved checkpoint.
var ErrWorkflowNotFound = errors.New("store: workflow not found")

// WorkflowSummary records one workflow's final summary against the session
// it ran under, so a conversation's history includes what each run produced
// without needing to replay the full WorkflowState.
type WorkflowSummary struct {
	WorkflowID domain.WorkflowID
	Summary    string
	At         time.Time
}

// ConversationRecord is one session's durable, append-only history.
type ConversationRecord struct {
	SessionID domain.SessionID
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []domain.ConversationTurn
	Artifacts []domain.Artifact
	Summaries []WorkflowSummary
}

// ConversationStore persists conversation history: messages, artifacts (as
// metadata + content hash — domain.Artifact already carries Digest), and
// per-workflow summaries. Implementations must be append-only: Append*
// methods never rewrite prior entries.
type ConversationStore interface {
	// Get loads a session's full durable record. Returns ErrSessionNotFound
	// if the session has never been touched.
	Get(ctx context.Context, sessionID domain.SessionID) (ConversationRecord, error)
	// List returns up to limit known session ids, most recently updated
	// first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]domain.SessionID, error)
	// AppendMessage appends one conversation turn, creating the session
	// record if it doesn't already exist.
	AppendMessage(ctx context.Context, sessionID domain.SessionID, turn domain.ConversationTurn) error
	// AppendArtifact appends one applied artifact's metadata.
	AppendArtifact(ctx context.Context, sessionID domain.SessionID, artifact domain.Artifact) error
	// AppendSummary appends one workflow's final summary.
	AppendSummary(ctx context.Context, sessionID domain.SessionID, summary WorkflowSummary) error
	// Touch records sessionID as accessed at t, for LRU/TTL eviction.
	Touch(ctx context.Context, sessionID domain.SessionID, t time.Time) error
}

// WorkflowCheckpoint persists transactional WorkflowState snapshots
// (spec.md §4.7: "after any state transition that crosses a stage boundary,
// or before suspending on HITL, the engine persists WorkflowState through C9
// atomically"). A durable backend must make Save atomic (write-temp + rename,
// or an equivalent single-transaction write) so a crash mid-write never
// leaves a half-written checkpoint as the resume point.
type WorkflowCheckpoint interface {
	Save(ctx context.Context, state domain.WorkflowState) error
	// Load returns the most recently saved state. ok is false if nothing has
	// ever been saved for workflowID.
	Load(ctx context.Context, workflowID domain.WorkflowID) (domain.WorkflowState, bool, error)
	// Delete removes a workflow's checkpoint once it reaches a terminal
	// status and no longer needs to be resumable.
	Delete(ctx context.Context, workflowID domain.WorkflowID) error
	// ListPending returns every workflow id whose last saved status is
	// non-terminal, i.e. a candidate for resume after a process restart.
	ListPending(ctx context.Context) ([]domain.WorkflowID, error)
}

// Evictor is implemented by ConversationStore backends that hold their
// working set in process memory and therefore need the LRU/TTL sweep spec.md
// §5 describes ("max_sessions_cached = 100, ttl = 1h"). Backends that are
// already fully durable on first write (mongoconv, sqliteconv) have nothing
// to proactively evict from memory and need not implement it.
type Evictor interface {
	// Sweep evicts sessions beyond maxSessions (oldest-accessed first) or
	// idle longer than ttl, returning the evicted session ids. Whether
	// eviction discards data depends on the backend: memconv flushes each
	// candidate through its FlushFunc first and keeps any candidate whose
	// flush fails, but with a nil FlushFunc the evicted records are lost.
	// runtime/store.Sweeper only schedules Sweep; it does no flushing itself.
	Sweep(ctx context.Context, maxSessions int, ttl time.Duration) ([]domain.SessionID, error)
}
