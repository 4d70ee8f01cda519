package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	ctxstore "github.com/codeforge/assistant/runtime/context"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/engine"
)

// runWorkflow is the WorkflowFunc registered under WorkflowAssistant. It
// drives one workflow from the synthetic Supervisor stage through the Plan's
// DAG to a terminal domain.WorkflowStatus, publishing the event sequence
// spec.md §4.7/§5 require along the way.
func (o *Orchestrator) runWorkflow(wc engine.WorkflowContext, input any) (any, error) {
	req, err := decodeRequest(input)
	if err != nil {
		return nil, err
	}

	store := ctxstore.New(o.Config.ContextMaxEntries, o.Config.ContextMaxBytes)
	state := &domain.WorkflowState{
		WorkflowID:    req.WorkflowID,
		SessionID:     req.SessionID,
		Status:        domain.WorkflowCreated,
		StageStates:   map[domain.StageID]domain.StageState{},
		StageAttempts: map[domain.StageID]int{},
		SharedContext: map[string]domain.ContextEntry{},
		CreatedAt:     wc.Now(),
		UpdatedAt:     wc.Now(),
		Deadline:      wc.Now().Add(o.Config.WorkflowDeadline),
	}
	o.registerRun(req.WorkflowID, req, store, state)
	defer o.forgetRun(req.WorkflowID)
	o.checkpoint(wc.Context(), state)

	state.Status = domain.WorkflowPlanning
	o.checkpoint(wc.Context(), state)

	supervisorStage := domain.Stage{
		StageID:   supervisorStageID,
		AgentRole: domain.RoleSupervisor,
		Timeout:   o.Config.StageTimeout,
	}
	supOut, failure := o.runStageSync(wc, req.WorkflowID, supervisorStage, nil)
	if failure != nil {
		return o.finalizeFailed(wc, state, *failure)
	}
	if supOut.DeclinedToPlan {
		return o.finalizeCompleted(wc, state, supOut.Text)
	}

	o.commitContextWrites(store, req.WorkflowID, supervisorStage, supOut)
	planVal, ok := store.Get("plan", "engine")
	plan, ok2 := planVal.(domain.Plan)
	if !ok || !ok2 {
		return o.finalizeFailed(wc, state, failureInfo{Reason: domain.ReasonPermanentError, Detail: "supervisor did not produce a plan"})
	}
	state.Plan = plan
	for _, s := range plan.Stages {
		state.StageStates[s.StageID] = domain.StagePending
	}
	state.Status = domain.WorkflowRunning
	o.checkpoint(wc.Context(), state)

	finalSummary := ""

	for {
		if err := o.gateFor(req.WorkflowID).wait(wc.Context()); err != nil {
			return o.finalizeFailed(wc, state, failureInfo{Reason: domain.ReasonNone, Detail: "cancelled while paused"})
		}

		batch := o.readyBatch(state)
		if len(batch) == 0 {
			if o.allTerminal(state) {
				break
			}
			o.skipUnreachable(state)
			break
		}
		for _, s := range batch {
			state.StageStates[s.StageID] = domain.StageRunning
		}
		o.checkpoint(wc.Context(), state)

		results := o.runBatch(wc, req.WorkflowID, batch)

		fatal := false
		var refineNeeded []stageResult
		for _, r := range results {
			state.StageAttempts[r.stage.StageID]++
			if r.failure != nil {
				state.StageStates[r.stage.StageID] = domain.StageFailed
				state.FailureReason = r.failure.Reason
				state.FailureDetails = r.failure.Detail
				o.publish(req.WorkflowID, domain.StageFailedEvent{
					Base: o.base(req.WorkflowID, domain.EventStageFailed), StageID: r.stage.StageID,
					Reason: r.failure.Reason, Detail: r.failure.Detail, RetryCount: state.StageAttempts[r.stage.StageID],
				})
				fatal = true
				continue
			}
			o.commitContextWrites(store, req.WorkflowID, r.stage, r.out)
			state.ArtifactsApplied = append(state.ArtifactsApplied, r.out.Artifacts...)
			state.StageStates[r.stage.StageID] = domain.StageCompleted
			o.publish(req.WorkflowID, domain.StageCompletedEvent{
				Base: o.base(req.WorkflowID, domain.EventStageCompleted), StageID: r.stage.StageID, Metrics: r.out.Metrics,
			})
			if r.stage.AgentRole == domain.RoleAggregator && r.out.Text != "" {
				finalSummary = r.out.Text
			}
			if r.out.NeedsRefine {
				refineNeeded = append(refineNeeded, r)
			}
		}
		if fatal {
			o.checkpoint(wc.Context(), state)
			return o.finalizeFailed(wc, state, failureInfo{Reason: state.FailureReason, Detail: state.FailureDetails})
		}

		if len(refineNeeded) > 0 {
			if failure := o.runRefinementLoop(wc, req.WorkflowID, store, state, refineNeeded); failure != nil {
				o.checkpoint(wc.Context(), state)
				return o.finalizeFailed(wc, state, *failure)
			}
		}
		o.checkpoint(wc.Context(), state)
	}

	return o.finalizeCompleted(wc, state, finalSummary)
}

// stageResult pairs one batch-member stage with its outcome.
type stageResult struct {
	stage   domain.Stage
	out     domain.AgentOutput
	failure *failureInfo
}

// runBatch executes every stage in batch concurrently, bounded by
// Config.MaxParallelStages (spec.md §5 invariant 8: "at any instant the
// number of running stages per workflow ≤ max_parallel_stages"), and
// returns their results sorted ascending by StageID, so callers can commit
// ContextWrites deterministically (spec.md §4.4 "lower stage_id wins"
// tie-break).
func (o *Orchestrator) runBatch(wc engine.WorkflowContext, wfID domain.WorkflowID, batch []domain.Stage) []stageResult {
	results := make([]stageResult, len(batch))
	limit := o.Config.MaxParallelStages
	if limit <= 0 {
		limit = 1
	}
	g, ctx := errgroup.WithContext(wc.Context())
	g.SetLimit(limit)
	for i, stage := range batch {
		i, s := i, stage
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out, failure := o.runStageSync(wc, wfID, s, nil)
			results[i] = stageResult{stage: s, out: out, failure: failure}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runRefinementLoop re-runs the Refiner stage followed by every gate stage
// that flagged NeedsRefine, bounded at Config.MaxRefinements iterations
// (spec.md §4.7). On exhaustion it raises an HITL review checkpoint; a
// reject/cancel response fails the workflow, anything else marks the
// outstanding gate stages completed and lets the workflow proceed; the
// unresolved findings are not recorded in FailureDetails.
func (o *Orchestrator) runRefinementLoop(wc engine.WorkflowContext, wfID domain.WorkflowID, store *ctxstore.Store, state *domain.WorkflowState, pending []stageResult) *failureInfo {
	refinerStage, hasRefiner := findStageByRole(state.Plan, domain.RoleRefiner)
	if !hasRefiner {
		return nil
	}

	rounds := 0
	for len(pending) > 0 && rounds < o.Config.MaxRefinements {
		rounds++
		refOut, failure := o.runStageSync(wc, wfID, refinerStage, nil)
		if failure != nil {
			return failure
		}
		o.commitContextWrites(store, wfID, refinerStage, refOut)
		state.ArtifactsApplied = append(state.ArtifactsApplied, refOut.Artifacts...)
		state.StageStates[refinerStage.StageID] = domain.StageCompleted
		o.publish(wfID, domain.StageCompletedEvent{
			Base: o.base(wfID, domain.EventStageCompleted), StageID: refinerStage.StageID, Metrics: refOut.Metrics,
		})

		var next []stageResult
		for _, r := range pending {
			gateOut, failure := o.runStageSync(wc, wfID, r.stage, nil)
			if failure != nil {
				return failure
			}
			o.commitContextWrites(store, wfID, r.stage, gateOut)
			state.StageStates[r.stage.StageID] = domain.StageCompleted
			o.publish(wfID, domain.StageCompletedEvent{
				Base: o.base(wfID, domain.EventStageCompleted), StageID: r.stage.StageID, Metrics: gateOut.Metrics,
			})
			if gateOut.NeedsRefine {
				next = append(next, stageResult{stage: r.stage, out: gateOut})
			}
		}
		pending = next
	}

	if len(pending) == 0 {
		return nil
	}

	resp := o.dispatchHITL(wfID, pending[0].stage.StageID, domain.HITLRequest{
		CheckpointType: domain.CheckpointReview,
		Title:          "Refinement limit reached",
		Description:    "Automatic refinement did not resolve every outstanding finding within the configured number of iterations.",
	})
	if resp.Action == domain.ActionReject || resp.Action == domain.ActionCancel {
		return &failureInfo{Reason: domain.ReasonPermanentError, Detail: "refinement exhausted; reviewer declined to proceed"}
	}
	for _, r := range pending {
		state.StageStates[r.stage.StageID] = domain.StageCompleted
	}
	return nil
}

func findStageByRole(plan domain.Plan, role domain.AgentRole) (domain.Stage, bool) {
	for _, s := range plan.Stages {
		if s.AgentRole == role {
			return s, true
		}
	}
	return domain.Stage{}, false
}

func (o *Orchestrator) finalizeCompleted(wc engine.WorkflowContext, state *domain.WorkflowState, summary string) (any, error) {
	state.Status = domain.WorkflowFinalizing
	o.checkpoint(wc.Context(), state)

	state.Status = domain.WorkflowCompleted
	o.checkpoint(wc.Context(), state)
	o.publish(state.WorkflowID, domain.WorkflowCompletedEvent{
		Base:             o.base(state.WorkflowID, domain.EventWorkflowCompleted),
		ArtifactsApplied: len(state.ArtifactsApplied),
		Summary:          summary,
	})
	return summary, nil
}

func (o *Orchestrator) finalizeFailed(wc engine.WorkflowContext, state *domain.WorkflowState, failure failureInfo) (any, error) {
	state.Status = domain.WorkflowFailed
	state.FailureReason = failure.Reason
	state.FailureDetails = failure.Detail
	o.checkpoint(wc.Context(), state)
	o.publish(state.WorkflowID, domain.WorkflowFailedEvent{
		Base: o.base(state.WorkflowID, domain.EventWorkflowFailed), Reason: failure.Reason, Detail: failure.Detail,
	})
	return nil, nil
}

// Cancel requests cancellation of a running workflow: every pending HITL
// request belonging to it is cancelled so any stage blocked in dispatchHITL
// unblocks, and the engine handle itself is cancelled so context.Context
// propagation stops in-flight activities.
func (o *Orchestrator) Cancel(ctx context.Context, handle engine.WorkflowHandle, workflowID domain.WorkflowID, reason string) error {
	o.Broker.CancelWorkflow(workflowID, reason)
	if err := handle.Cancel(ctx); err != nil {
		return err
	}
	if state := o.stateFor(workflowID); state != nil {
		state.Status = domain.WorkflowCancelled
		o.checkpoint(ctx, state)
	}
	o.publish(workflowID, domain.WorkflowCancelledEvent{Base: o.base(workflowID, domain.EventWorkflowCancelled)})
	return nil
}
