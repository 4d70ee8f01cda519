// Package orchestrator implements the core of the Workflow Engine (C7): the
// stage scheduler that walks a Plan's DAG using the registered Agent
// Handlers, Tool Registry, Workspace Manager, HITL Broker, per-workflow
// Shared Context Store, and Event Bus. It is registered as a single
// WorkflowFunc against a runtime/engine.Engine backend (in-memory or
// Temporal), so the scheduling logic itself never depends on which backend
// is driving it — generalized from the teacher's runtime/agent/runtime
// package, which plays the same "the orchestrator is just another workflow
// registered with the engine" role for Goa's generated agent runtime.
package orchestrator

import (
	"context"
	"sync"

	"github.com/codeforge/assistant/internal/config"
	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/broker"
	"github.com/codeforge/assistant/runtime/bus"
	ctxstore "github.com/codeforge/assistant/runtime/context"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/engine"
	"github.com/codeforge/assistant/runtime/telemetry"
	"github.com/codeforge/assistant/runtime/tools"
	"github.com/codeforge/assistant/runtime/workspace"
)

// Names registered with the engine backend.
const (
	WorkflowAssistant = "AssistantWorkflow"
	ActivityRunStage  = "RunStage"

	supervisorStageID domain.StageID = "__supervisor__"
)

// Orchestrator wires the Workflow Engine abstraction to every collaborating
// component. One Orchestrator serves every workflow in the process; per-run
// state (Shared Context Store, WorkflowState, the originating Request) is
// tracked in workflow-scoped registries guarded by mu, since the RunStage
// activity handler is a method closure shared across concurrent workflow
// runs rather than a value captured per run.
//
// Running Temporal activities in the same process as the Orchestrator (so
// these registries can be looked up by WorkflowID directly instead of
// serialized across a worker boundary) is a deliberate simplification noted
// in DESIGN.md; a multi-process deployment would instead need the Shared
// Context Store and WorkflowState to be fetched from the C9 checkpoint store
// inside the activity.
type Orchestrator struct {
	Engine      engine.Engine
	Handlers    map[domain.AgentRole]agents.Handler
	Tools       *tools.Registry
	Workspace   *workspace.Manager
	Broker      *broker.Broker
	Bus         *bus.Bus
	Config      *config.Config
	Checkpoints Checkpointer
	Telemetry   telemetry.Set

	mu         sync.Mutex
	stores     map[domain.WorkflowID]*ctxstore.Store
	requests   map[domain.WorkflowID]domain.Request
	states     map[domain.WorkflowID]*domain.WorkflowState
	writeDocs  map[domain.WorkflowID]map[string]string // context key -> description
	pauseGates map[domain.WorkflowID]*pauseGate
}

// New constructs an Orchestrator. Callers finish wiring by calling Register
// once at process startup, then Start per incoming request.
func New(eng engine.Engine, handlers map[domain.AgentRole]agents.Handler, toolReg *tools.Registry, ws *workspace.Manager, brk *broker.Broker, evbus *bus.Bus, cfg *config.Config, checkpoints Checkpointer, tel telemetry.Set) *Orchestrator {
	if tel.Logger == nil {
		tel = telemetry.Noop()
	}
	if checkpoints == nil {
		checkpoints = NewMemoryCheckpointer()
	}
	return &Orchestrator{
		Engine:      eng,
		Handlers:    handlers,
		Tools:       toolReg,
		Workspace:   ws,
		Broker:      brk,
		Bus:         evbus,
		Config:      cfg,
		Checkpoints: checkpoints,
		Telemetry:   tel,
		stores:      make(map[domain.WorkflowID]*ctxstore.Store),
		requests:    make(map[domain.WorkflowID]domain.Request),
		states:      make(map[domain.WorkflowID]*domain.WorkflowState),
		writeDocs:   make(map[domain.WorkflowID]map[string]string),
		pauseGates:  make(map[domain.WorkflowID]*pauseGate),
	}
}

// Register binds the orchestrator's workflow function and RunStage activity
// to the engine backend. Call once at process startup before Start.
func (o *Orchestrator) Register(ctx context.Context) error {
	if err := o.Engine.RegisterActivity(ctx, engine.ActivityDefinition{
		Name:    ActivityRunStage,
		Handler: o.runStageActivity,
		Options: engine.ActivityOptions{
			Timeout:     o.Config.StageTimeout,
			RetryPolicy: engine.RetryPolicy{MaxAttempts: 1},
		},
	}); err != nil {
		return err
	}
	return o.Engine.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:    WorkflowAssistant,
		Handler: o.runWorkflow,
	})
}

// Start launches one workflow execution for req and returns a handle to it.
func (o *Orchestrator) Start(ctx context.Context, req domain.Request) (engine.WorkflowHandle, error) {
	return o.Engine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       string(req.WorkflowID),
		Workflow: WorkflowAssistant,
		Input:    req,
	})
}

// --- per-workflow registries ---

func (o *Orchestrator) registerRun(wfID domain.WorkflowID, req domain.Request, store *ctxstore.Store, state *domain.WorkflowState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests[wfID] = req
	o.stores[wfID] = store
	o.states[wfID] = state
	o.writeDocs[wfID] = make(map[string]string)
}

func (o *Orchestrator) forgetRun(wfID domain.WorkflowID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.requests, wfID)
	delete(o.stores, wfID)
	delete(o.states, wfID)
	delete(o.writeDocs, wfID)
	delete(o.pauseGates, wfID)
}

func (o *Orchestrator) storeFor(wfID domain.WorkflowID) *ctxstore.Store {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stores[wfID]
}

func (o *Orchestrator) requestFor(wfID domain.WorkflowID) domain.Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[wfID]
}

func (o *Orchestrator) stateFor(wfID domain.WorkflowID) *domain.WorkflowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[wfID]
}

func (o *Orchestrator) noteWriteDescription(wfID domain.WorkflowID, key, description string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.writeDocs[wfID]; ok {
		m[key] = description
	}
}

func (o *Orchestrator) writeDescription(wfID domain.WorkflowID, key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writeDocs[wfID][key]
}
