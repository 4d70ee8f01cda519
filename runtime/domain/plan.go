package domain

import "time"

// Request is the immutable input that starts a workflow (spec.md §3).
type Request struct {
	WorkflowID         WorkflowID
	SessionID          SessionID
	UserMessage        string
	WorkspaceRoot      string
	ConversationHistory []ConversationTurn
	Flags              Flags
}

// ConversationTurn is one prior message in the session's history.
type ConversationTurn struct {
	Role    string
	Content string
	At      time.Time
}

// Flags carries the per-request feature toggles from spec.md §6.
type Flags struct {
	EnableDynamicHITL bool
	EnablePauseButton bool
}

// RetryPolicy bounds how many times a stage may be retried (spec.md §4.7,
// §7). Which error kinds qualify is decided by the orchestrator, not here.
type RetryPolicy struct {
	MaxRetries int
}

// Stage is one node in a Plan's DAG (spec.md §3).
type Stage struct {
	StageID      StageID
	AgentRole    AgentRole
	DependsOn    []StageID
	InputRefs    []string // keys into SharedContext
	RequiresHITL bool
	RetryPolicy  RetryPolicy
	Timeout      time.Duration
	ParallelGroup string // stages sharing a non-empty group may run concurrently
}

// Plan is the DAG produced once by the Supervisor (spec.md §3). The
// orchestrator runs it as produced: a stage that fails permanently fails the
// workflow, and the Plan is not revised (Config.MaxPlanRevisions is not
// consulted).
type Plan struct {
	Stages   []Stage
	Revision int
}

// StageByID looks up a stage by id, returning false if absent.
func (p Plan) StageByID(id StageID) (Stage, bool) {
	for _, s := range p.Stages {
		if s.StageID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// Dependents returns the stage ids that directly depend on id.
func (p Plan) Dependents(id StageID) []StageID {
	var out []StageID
	for _, s := range p.Stages {
		for _, dep := range s.DependsOn {
			if dep == id {
				out = append(out, s.StageID)
				break
			}
		}
	}
	return out
}

// StageState is the lifecycle of one stage execution (spec.md §3). Transitions
// are monotone except awaiting_hitl -> running.
type StageState string

const (
	StagePending     StageState = "pending"
	StageReady       StageState = "ready"
	StageRunning     StageState = "running"
	StageAwaitingHITL StageState = "awaiting_hitl"
	StageCompleted   StageState = "completed"
	StageFailed      StageState = "failed"
	StageSkipped     StageState = "skipped"
	StageCancelled   StageState = "cancelled"
)

// Terminal reports whether s is a terminal state for the stage.
func (s StageState) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageSkipped, StageCancelled:
		return true
	default:
		return false
	}
}
