package domain

import "time"

// EventType names one member of the tagged event union (spec.md §3).
type EventType string

const (
	EventStageStarted      EventType = "stage_started"
	EventStageStreamChunk  EventType = "stage_stream_chunk"
	EventStageCompleted    EventType = "stage_completed"
	EventStageFailed       EventType = "stage_failed"
	EventArtifactApplied   EventType = "artifact_applied"
	EventHITLRequested     EventType = "hitl_requested"
	EventHITLResolved      EventType = "hitl_resolved"
	EventHITLCancelled     EventType = "hitl_cancelled"
	EventHITLExpired       EventType = "hitl_expired"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventWorkflowCancelled EventType = "workflow_cancelled"
	EventHeartbeat         EventType = "heartbeat"

	// EventQueued reports a workflow's FIFO position when max_active_workflows
	// is saturated (spec.md §4.7).
	EventQueued EventType = "queued"
	// EventDropped tells a subscriber its bounded buffer overflowed and some
	// events were skipped (spec.md §4.8).
	EventDropped EventType = "dropped"
	// EventSnapshot resynchronizes a subscriber after a drop with the current
	// WorkflowState projection (spec.md §4.8).
	EventSnapshot EventType = "snapshot"
	// EventResumedFrom is sent to a reconnecting subscriber instead of
	// replaying pre-pause events (spec.md §4.7).
	EventResumedFrom EventType = "resumed_from"
)

// Event is the interface every concrete event type implements. Subscribers
// use a type switch on the concrete type (or filter by Type()) the way the
// teacher's hooks.Event consumers do.
type Event interface {
	Type() EventType
	GetWorkflowID() WorkflowID
	GetSessionID() SessionID
	Seq() int64
	At() time.Time
}

// Base carries the fields every event shares. Concrete event structs embed
// it and get Type/GetWorkflowID/GetSessionID/Seq/At for free.
type Base struct {
	EventType  EventType
	WorkflowID WorkflowID
	SessionID  SessionID
	MonoSeq    int64
	Timestamp  time.Time
}

func (b Base) Type() EventType             { return b.EventType }
func (b Base) GetWorkflowID() WorkflowID   { return b.WorkflowID }
func (b Base) GetSessionID() SessionID     { return b.SessionID }
func (b Base) Seq() int64                  { return b.MonoSeq }
func (b Base) At() time.Time               { return b.Timestamp }

type (
	// StageStartedEvent fires when the engine begins executing a stage.
	StageStartedEvent struct {
		Base
		StageID   StageID
		AgentRole AgentRole
		Attempt   int
	}

	// StageStreamChunkEvent relays one HandlerEvent.DeltaText chunk.
	StageStreamChunkEvent struct {
		Base
		StageID StageID
		Delta   string
		Channel string // "" for user-facing text, "thinking" for reasoning deltas
	}

	// StageCompletedEvent fires once a stage's artifact_applied and
	// context_write effects have all been published (spec.md §5 ordering rule).
	StageCompletedEvent struct {
		Base
		StageID StageID
		Metrics Metrics
	}

	// StageFailedEvent fires when a stage exhausts retries or fails permanently.
	StageFailedEvent struct {
		Base
		StageID     StageID
		Reason      FailureReason
		Detail      string
		RetryCount  int
	}

	// ArtifactAppliedEvent fires after the Workspace Manager durably applies
	// one artifact.
	ArtifactAppliedEvent struct {
		Base
		StageID  StageID
		Artifact Artifact
	}

	// HITLRequestedEvent fires when a stage raises a checkpoint.
	HITLRequestedEvent struct {
		Base
		Request HITLRequest
	}

	// HITLResolvedEvent fires when a checkpoint receives a response.
	HITLResolvedEvent struct {
		Base
		RequestID string
		Response  HITLResponse
	}

	// HITLCancelledEvent fires when a checkpoint is cancelled (e.g. workflow
	// cancellation) without a human response.
	HITLCancelledEvent struct {
		Base
		RequestID string
		Reason    string
	}

	// HITLExpiredEvent fires when a checkpoint's deadline elapses unanswered.
	HITLExpiredEvent struct {
		Base
		RequestID string
	}

	// WorkflowCompletedEvent is the terminal success event.
	WorkflowCompletedEvent struct {
		Base
		ArtifactsApplied int
		Summary          string
	}

	// WorkflowFailedEvent is the terminal failure event. User-visible Detail
	// never includes a tool/model stack trace (spec.md §7).
	WorkflowFailedEvent struct {
		Base
		Reason FailureReason
		Detail string
	}

	// WorkflowCancelledEvent is the terminal event for a cancelled workflow.
	WorkflowCancelledEvent struct {
		Base
	}

	// HeartbeatEvent keeps idle long-poll/SSE connections alive.
	HeartbeatEvent struct {
		Base
	}

	// QueuedEvent reports FIFO position while waiting for an engine slot.
	QueuedEvent struct {
		Base
		Position int
	}

	// DroppedEvent tells a subscriber N events were dropped due to backpressure.
	DroppedEvent struct {
		Base
		Count int
	}

	// SnapshotEvent resynchronizes a subscriber with the current projection.
	SnapshotEvent struct {
		Base
		State WorkflowState
	}

	// ResumedFromEvent tells a reconnecting subscriber where the live stream
	// picks back up.
	ResumedFromEvent struct {
		Base
		FromSeq int64
	}
)
