package domain

import "time"

// CheckpointType names the kind of human decision an HITLRequest asks for
// (spec.md §3).
type CheckpointType string

const (
	CheckpointApproval  CheckpointType = "approval"
	CheckpointReview    CheckpointType = "review"
	CheckpointEdit      CheckpointType = "edit"
	CheckpointChoice    CheckpointType = "choice"
	CheckpointConfirm   CheckpointType = "confirm"
	// CheckpointQuestion is used by the Supervisor to ask a free-form
	// clarifying question before a plan is built (scenario S4 in spec.md §8).
	CheckpointQuestion CheckpointType = "question"
)

// HITLRequest is a blocking request for human input raised by a stage
// (spec.md §3).
type HITLRequest struct {
	RequestID      string
	WorkflowID     WorkflowID
	StageID        StageID
	CheckpointType CheckpointType
	Title          string
	Description    string
	Content        string
	Options        []string // populated for CheckpointChoice
	Priority       int
	CreatedAt      time.Time
	Deadline       *time.Time
}

// HITLAction is the disposition chosen by the human responder.
type HITLAction string

const (
	ActionApprove HITLAction = "approve"
	ActionReject  HITLAction = "reject"
	ActionEdit    HITLAction = "edit"
	ActionRetry   HITLAction = "retry"
	ActionSelect  HITLAction = "select"
	ActionConfirm HITLAction = "confirm"
	ActionCancel  HITLAction = "cancel"
)

// HITLResponse answers a pending HITLRequest (spec.md §3).
type HITLResponse struct {
	RequestID       string
	Action          HITLAction
	Feedback        string
	ModifiedContent string
	SelectedOption  string
}

// HITLRequestState is the lifecycle of one HITLRequest (spec.md §4.6).
type HITLRequestState string

const (
	HITLPending   HITLRequestState = "pending"
	HITLResolved  HITLRequestState = "resolved"
	HITLCancelled HITLRequestState = "cancelled"
	HITLExpired   HITLRequestState = "expired"
)
