// Package engine defines the workflow engine abstraction the Workflow Engine
// (spec.md §4.7) is built on, so the same stage-scheduling logic runs
// unmodified against an in-process backend (runtime/engine/inmem, used in
// tests and single-process deployments) or a durable backend
// (runtime/engine/temporal, used in multi-process production deployments) —
// the engine-selection Open Question in DESIGN.md is resolved at config
// load, never at runtime. Adapted from the teacher's
// runtime/agent/engine package, trimmed of its Goa-DSL-generated-code
// specific RunOutput/ChildWorkflow plumbing this spec has no use for.
package engine

import (
	"context"
	"time"

	"github.com/codeforge/assistant/runtime/telemetry"
)

// Engine abstracts workflow registration and execution so adapters (Temporal,
// in-memory) can be swapped without touching orchestrator code.
type Engine interface {
	// RegisterWorkflow registers a workflow definition. Called once during
	// process initialization before any workflow is started.
	RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error
	// RegisterActivity registers an activity definition. Called once during
	// process initialization before any workflow is started.
	RegisterActivity(ctx context.Context, def ActivityDefinition) error
	// StartWorkflow begins one workflow execution and returns a handle to it.
	StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
}

// WorkflowDefinition binds a workflow handler to a logical name and queue.
type WorkflowDefinition struct {
	Name      string
	TaskQueue string
	Handler   WorkflowFunc
}

// WorkflowFunc is the orchestrator's workflow entry point: for this system it
// is always the Orchestrator's runWorkflow method, registered once at startup
// under the name "AssistantWorkflow".
type WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

// WorkflowContext exposes engine operations to the workflow function.
// Implementations must keep activity execution and signal handling
// deterministic under replay on backends that require it (Temporal); the
// in-memory backend has no replay and is correspondingly more permissive.
type WorkflowContext interface {
	Context() context.Context
	WorkflowID() string
	RunID() string
	ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
	ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)
	SignalChannel(name string) SignalChannel
	Logger() telemetry.Logger
	Metrics() telemetry.Metrics
	Tracer() telemetry.Tracer
	Now() time.Time
}

// Future represents a pending activity result.
type Future interface {
	Get(ctx context.Context, result any) error
	IsReady() bool
}

// ActivityDefinition registers an activity handler.
type ActivityDefinition struct {
	Name    string
	Handler ActivityFunc
	Options ActivityOptions
}

// ActivityFunc performs one unit of non-deterministic work (LLM calls, tool
// execution, filesystem writes, HITL waits). Unlike workflow functions,
// activities may perform side effects freely.
type ActivityFunc func(ctx context.Context, input any) (any, error)

// ActivityOptions configures retry and timeout behavior for an activity.
type ActivityOptions struct {
	Queue       string
	RetryPolicy RetryPolicy
	Timeout     time.Duration
}

// WorkflowStartRequest describes how to launch one workflow execution.
type WorkflowStartRequest struct {
	ID               string
	Workflow         string
	TaskQueue        string
	Input            any
	Memo             map[string]any
	SearchAttributes map[string]any
	RetryPolicy      RetryPolicy
}

// ActivityRequest describes one activity invocation from within a workflow.
type ActivityRequest struct {
	Name        string
	Input       any
	Queue       string
	RetryPolicy RetryPolicy
	Timeout     time.Duration
}

// WorkflowHandle lets callers interact with a running workflow.
type WorkflowHandle interface {
	Wait(ctx context.Context, result any) error
	Signal(ctx context.Context, name string, payload any) error
	Cancel(ctx context.Context) error
}

// RetryPolicy defines retry semantics shared by workflows and activities.
// Zero-valued fields mean the engine uses its defaults.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
}

// SignalChannel exposes workflow signal delivery in an engine-agnostic way.
// The orchestrator does not use signals: a resolved HITLResponse (or
// cancellation) reaches a paused stage through the runtime/broker channel
// returned by Broker.Register.
type SignalChannel interface {
	Receive(ctx context.Context, dest any) error
	ReceiveAsync(dest any) bool
}
