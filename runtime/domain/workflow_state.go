package domain

import "time"

// WorkflowStatus is the per-workflow state machine from spec.md §4.7:
//
//	created -> planning -> running <-> paused(hitl|user) -> finalizing -> completed|failed|cancelled
type WorkflowStatus string

const (
	WorkflowCreated    WorkflowStatus = "created"
	WorkflowPlanning   WorkflowStatus = "planning"
	WorkflowRunning    WorkflowStatus = "running"
	WorkflowPausedHITL WorkflowStatus = "paused_hitl"
	WorkflowPausedUser WorkflowStatus = "paused_user"
	WorkflowFinalizing WorkflowStatus = "finalizing"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
	WorkflowCancelled  WorkflowStatus = "cancelled"
)

// Terminal reports whether s admits no further transitions.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// FailureReason enumerates the terminal failure reasons from spec.md §7.
type FailureReason string

const (
	ReasonNone               FailureReason = ""
	ReasonPermanentError     FailureReason = "permanent_error"
	ReasonResourceExhausted  FailureReason = "resource_exhausted"
	ReasonDeadlineExceeded   FailureReason = "deadline_exceeded"
	ReasonIntegrity          FailureReason = "integrity"
	ReasonToolTimeout        FailureReason = "tool_timeout"
)

// WorkflowState is the checkpoint record persisted by the Workflow Engine
// (spec.md §3/§4.7). It is the sole source of truth for resume.
type WorkflowState struct {
	WorkflowID      WorkflowID
	SessionID       SessionID
	Status          WorkflowStatus
	Plan            Plan
	StageStates     map[StageID]StageState
	StageAttempts   map[StageID]int
	SharedContext   map[string]ContextEntry
	ContextLog      []ContextLogEntry
	ArtifactsApplied []Artifact
	PendingHITL     *HITLRequest
	Cursor          int64 // monotonic_seq of the last durably persisted event
	FailureReason   FailureReason
	FailureDetails  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Deadline        time.Time
}

// Clone returns a deep-enough copy of the state suitable for snapshotting:
// mutating the clone never affects the original maps/slices.
func (s WorkflowState) Clone() WorkflowState {
	out := s
	out.StageStates = make(map[StageID]StageState, len(s.StageStates))
	for k, v := range s.StageStates {
		out.StageStates[k] = v
	}
	out.StageAttempts = make(map[StageID]int, len(s.StageAttempts))
	for k, v := range s.StageAttempts {
		out.StageAttempts[k] = v
	}
	out.SharedContext = make(map[string]ContextEntry, len(s.SharedContext))
	for k, v := range s.SharedContext {
		out.SharedContext[k] = v
	}
	out.ContextLog = append([]ContextLogEntry(nil), s.ContextLog...)
	out.ArtifactsApplied = append([]Artifact(nil), s.ArtifactsApplied...)
	out.Plan.Stages = append([]Stage(nil), s.Plan.Stages...)
	if s.PendingHITL != nil {
		cp := *s.PendingHITL
		out.PendingHITL = &cp
	}
	return out
}
