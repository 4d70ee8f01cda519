package orchestrator

import (
	"context"
	"sort"

	"github.com/codeforge/assistant/runtime/apperr"
	ctxstore "github.com/codeforge/assistant/runtime/context"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/engine"
)

// failureInfo is the orchestrator-level (post-retry) terminal failure
// classification for one stage invocation.
type failureInfo struct {
	Reason domain.FailureReason
	Detail string
}

// resolveStage looks up a Stage by id, special-casing the synthetic
// Supervisor stage that runs once before the Plan exists: the Supervisor
// decides whether to answer directly (quick_qa) or produce a Plan, which no
// Plan-driven Stage could describe since the Plan itself doesn't exist yet.
func (o *Orchestrator) resolveStage(state *domain.WorkflowState, stageID domain.StageID) (domain.Stage, bool) {
	if stageID == supervisorStageID {
		return domain.Stage{StageID: supervisorStageID, AgentRole: domain.RoleSupervisor, Timeout: o.Config.StageTimeout}, true
	}
	return state.Plan.StageByID(stageID)
}

func (o *Orchestrator) base(wfID domain.WorkflowID, t domain.EventType) domain.Base {
	state := o.stateFor(wfID)
	var sessionID domain.SessionID
	if state != nil {
		sessionID = state.SessionID
	}
	return domain.Base{
		EventType:  t,
		WorkflowID: wfID,
		SessionID:  sessionID,
		MonoSeq:    o.Bus.NextSeq(wfID),
		Timestamp:  domain.Now(),
	}
}

func (o *Orchestrator) publish(wfID domain.WorkflowID, event domain.Event) {
	o.Bus.Publish(context.Background(), event)
}

// runStageSync drives one stage to a terminal AgentOutput or failureInfo,
// retrying transient failures up to the stage's (or the config default's)
// MaxRetries. Retry classification is decided here, in the orchestrator,
// rather than delegated to the engine's built-in per-activity retry: the
// engine backends retry blindly by attempt count, with no visibility into
// apperr.Kind, so only the orchestrator can honor spec.md §7's "only
// transient failures are retried" rule uniformly across both backends.
func (o *Orchestrator) runStageSync(wc engine.WorkflowContext, wfID domain.WorkflowID, stage domain.Stage, hitlResp *domain.HITLResponse) (domain.AgentOutput, *failureInfo) {
	maxRetries := stage.RetryPolicy.MaxRetries
	if maxRetries <= 0 {
		maxRetries = o.Config.MaxRetries
	}

	for attempt := 1; ; attempt++ {
		var raw any
		err := wc.ExecuteActivity(wc.Context(), engine.ActivityRequest{
			Name:    ActivityRunStage,
			Input:   runStageInput{WorkflowID: wfID, StageID: stage.StageID, Attempt: attempt, HITLResponse: hitlResp},
			Timeout: stage.Timeout,
		}, &raw)
		if err != nil {
			return domain.AgentOutput{}, &failureInfo{Reason: domain.ReasonPermanentError, Detail: err.Error()}
		}

		out, derr := decodeRunStageOutput(raw)
		if derr != nil {
			return domain.AgentOutput{}, &failureInfo{Reason: domain.ReasonPermanentError, Detail: derr.Error()}
		}

		if out.FailureReason == "" && !out.Retriable {
			if out.Output.Error != nil {
				return domain.AgentOutput{}, &failureInfo{Reason: domain.ReasonPermanentError, Detail: out.Output.Error.Reason}
			}
			return out.Output, nil
		}

		if out.Retriable && attempt <= maxRetries {
			continue
		}

		reason := out.FailureReason
		if reason == "" {
			reason = domain.ReasonPermanentError
		}
		return domain.AgentOutput{}, &failureInfo{Reason: reason, Detail: out.FailureDetail}
	}
}

// commitContextWrites applies one stage's ContextWrites to the Shared
// Context Store in the caller-supplied order. Parallel-group stages are
// committed in ascending StageID order by the caller (spec.md §4.4 ordering
// rule: "lower stage_id wins"); a Put rejected because the key already
// exists means an earlier stage in the same batch, or an earlier run of the
// same stage (a refinement round), already claimed it, so the later write is
// recorded via Shadow instead of surfacing as a failure and the first value
// stays in the store.
func (o *Orchestrator) commitContextWrites(store *ctxstore.Store, wfID domain.WorkflowID, stage domain.Stage, output domain.AgentOutput) {
	agentID := string(stage.AgentRole) + ":" + string(stage.StageID)
	for key, value := range output.ContextWrites {
		description := o.writeDescription(wfID, key)
		if err := store.Put(key, agentID, stage.AgentRole, value, description); err != nil {
			if apperr.Is(err, apperr.KindPermanent) {
				store.Shadow(key, agentID)
				continue
			}
			o.Telemetry.Logger.Warn(context.Background(), "context write failed", "key", key, "stage", stage.StageID, "err", err)
		}
	}
}

func (o *Orchestrator) readyBatch(state *domain.WorkflowState) []domain.Stage {
	var batch []domain.Stage
	for _, s := range state.Plan.Stages {
		if state.StageStates[s.StageID] != domain.StagePending {
			continue
		}
		ready := true
		for _, dep := range s.DependsOn {
			if state.StageStates[dep] != domain.StageCompleted && state.StageStates[dep] != domain.StageSkipped {
				ready = false
				break
			}
		}
		if ready {
			batch = append(batch, s)
		}
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].StageID < batch[j].StageID })
	return batch
}

func (o *Orchestrator) allTerminal(state *domain.WorkflowState) bool {
	for _, s := range state.Plan.Stages {
		if !state.StageStates[s.StageID].Terminal() {
			return false
		}
	}
	return true
}

// skipUnreachable marks every non-terminal stage as skipped once the ready
// set is empty but the plan is not fully terminal. A failed stage ends the
// workflow before this point, so this only happens when a stage depends on a
// stage id that is not in the plan or on a dependency cycle, and can never
// become ready.
func (o *Orchestrator) skipUnreachable(state *domain.WorkflowState) {
	for _, s := range state.Plan.Stages {
		if !state.StageStates[s.StageID].Terminal() {
			state.StageStates[s.StageID] = domain.StageSkipped
		}
	}
}
