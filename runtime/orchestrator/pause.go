package orchestrator

import (
	"context"
	"sync"

	"github.com/codeforge/assistant/runtime/apperr"
	"github.com/codeforge/assistant/runtime/domain"
)

// pauseGate cooperatively suspends a workflow's stage-batch loop between
// batches (spec.md §4.7: pause/resume are stage-boundary operations, never
// mid-stage). It mirrors the HITL broker's single-shot-channel wakeup
// (runtime/broker.waiter) rather than a sync.Cond, since the orchestrator
// already favors channel-based gating elsewhere in this package.
type pauseGate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func newPauseGate() *pauseGate {
	return &pauseGate{resume: make(chan struct{})}
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = true
}

func (g *pauseGate) unpause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
	g.resume = make(chan struct{})
}

func (g *pauseGate) wait(ctx context.Context) error {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return nil
	}
	ch := g.resume
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) gateFor(wfID domain.WorkflowID) *pauseGate {
	o.mu.Lock()
	defer o.mu.Unlock()
	g, ok := o.pauseGates[wfID]
	if !ok {
		g = newPauseGate()
		o.pauseGates[wfID] = g
	}
	return g
}

// Pause suspends wfID at its next stage boundary (spec.md §6
// POST /workflow/pause/{workflow_id}, gated on Config.Feature(FeaturePauseButton)
// at the HTTP layer). Returns an error if the workflow isn't currently known
// to this process (e.g. it has already finished).
func (o *Orchestrator) Pause(ctx context.Context, wfID domain.WorkflowID) error {
	state := o.stateFor(wfID)
	if state == nil {
		return apperr.New(apperr.KindInvalidInput, "unknown or already-finished workflow: "+string(wfID))
	}
	o.gateFor(wfID).pause()
	state.Status = domain.WorkflowPausedUser
	o.checkpoint(ctx, state)
	return nil
}

// Resume releases a previously Pause'd workflow. Returns an error if the
// workflow isn't currently known to this process (e.g. it finished, or this
// is a different process than the one that paused it — resume by restart
// instead uses the Checkpointer directly).
func (o *Orchestrator) Resume(ctx context.Context, wfID domain.WorkflowID) error {
	state := o.stateFor(wfID)
	if state == nil {
		return apperr.New(apperr.KindInvalidInput, "unknown or already-finished workflow: "+string(wfID))
	}
	o.gateFor(wfID).unpause()
	state.Status = domain.WorkflowRunning
	o.checkpoint(ctx, state)
	return nil
}

// Status returns a copy of wfID's current WorkflowState, as tracked by this
// process, for GET /workflow/status/{workflow_id}. ok is false if the
// workflow is unknown to this process (finished-and-forgotten, or never
// started here); callers fall back to the Checkpointer for that case.
func (o *Orchestrator) Status(wfID domain.WorkflowID) (domain.WorkflowState, bool) {
	o.mu.Lock()
	state, ok := o.states[wfID]
	o.mu.Unlock()
	if !ok {
		return domain.WorkflowState{}, false
	}
	return state.Clone(), true
}
