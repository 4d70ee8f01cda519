package orchestrator

import (
	"context"
	"time"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/apperr"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/engine"
)

// runStageInput is the RunStage activity's input. It carries only the
// WorkflowID/StageID/Attempt/optional HITLResponse: everything else the
// activity needs (the Request, the Plan, the Shared Context Store) is looked
// up from the Orchestrator's in-process registries, per the single-process
// simplification documented on Orchestrator.
type runStageInput struct {
	WorkflowID   domain.WorkflowID
	StageID      domain.StageID
	Attempt      int
	HITLResponse *domain.HITLResponse
}

// runStageOutput is the RunStage activity's result. Business-level failures
// (an LLM error, a tool dispatch failure, a context-store write rejection)
// are encoded here rather than returned as a Go error, since the Temporal
// backend's default data converter does not preserve apperr.Error's Kind
// across the activity boundary; FailureReason/Retriable carry that
// classification explicitly so the decision survives either engine backend.
type runStageOutput struct {
	Output        domain.AgentOutput
	FailureReason domain.FailureReason
	FailureDetail string
	Retriable     bool
}

func (o *Orchestrator) runStageActivity(ctx context.Context, raw any) (any, error) {
	in, err := decodeRunStageInput(raw)
	if err != nil {
		return runStageOutput{FailureReason: domain.ReasonPermanentError, FailureDetail: err.Error()}, nil
	}

	state := o.stateFor(in.WorkflowID)
	store := o.storeFor(in.WorkflowID)
	req := o.requestFor(in.WorkflowID)
	if state == nil || store == nil {
		return runStageOutput{FailureReason: domain.ReasonPermanentError, FailureDetail: "workflow state not found"}, nil
	}

	stage, ok := o.resolveStage(state, in.StageID)
	if !ok {
		return runStageOutput{FailureReason: domain.ReasonPermanentError, FailureDetail: "unknown stage: " + string(in.StageID)}, nil
	}

	handler, ok := o.Handlers[stage.AgentRole]
	if !ok {
		return runStageOutput{FailureReason: domain.ReasonPermanentError, FailureDetail: "no handler registered for role: " + string(stage.AgentRole)}, nil
	}

	o.publish(in.WorkflowID, domain.StageStartedEvent{
		Base:      o.base(in.WorkflowID, domain.EventStageStarted),
		StageID:   stage.StageID,
		AgentRole: stage.AgentRole,
		Attempt:   in.Attempt,
	})

	timeout := stage.Timeout
	if timeout <= 0 {
		timeout = o.Config.StageTimeout
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := handler.Execute(stageCtx, agents.StageInput{
		Stage:          stage,
		Request:        req,
		Context:        contextReader{store: store, stageID: stage.StageID},
		PriorArtifacts: state.ArtifactsApplied,
		HITLResponse:   in.HITLResponse,
	})
	if err != nil {
		return classifyFailure(err), nil
	}

	agentOut, failure := o.drainHandler(stageCtx, in.WorkflowID, req, stage, out)
	if failure != nil {
		return *failure, nil
	}
	return runStageOutput{Output: agentOut}, nil
}

// contextReader adapts context.Store to agents.ContextReader, passing the
// handler-supplied agent name through to the access log and falling back to
// the stage id when the handler supplies none.
type contextReader struct {
	store   interface {
		Get(key, requestingAgent string) (any, bool)
	}
	stageID domain.StageID
}

func (r contextReader) Get(key, requestingAgent string) (any, bool) {
	if requestingAgent == "" {
		requestingAgent = string(r.stageID)
	}
	return r.store.Get(key, requestingAgent)
}

func (o *Orchestrator) drainHandler(ctx context.Context, wfID domain.WorkflowID, req domain.Request, stage domain.Stage, out <-chan agents.HandlerEvent) (domain.AgentOutput, *runStageOutput) {
	var agentOut domain.AgentOutput
	agentOut.ContextWrites = map[string]any{}
	var applied []domain.Artifact
	sawDone := false

	for {
		select {
		case <-ctx.Done():
			fail := runStageOutput{FailureReason: domain.ReasonDeadlineExceeded, FailureDetail: "stage timed out", Retriable: false}
			return domain.AgentOutput{}, &fail
		case ev, ok := <-out:
			if !ok {
				if !sawDone {
					fail := runStageOutput{FailureDetail: "handler stream closed without a done event", Retriable: true}
					if ctx.Err() != nil {
						fail = runStageOutput{FailureReason: domain.ReasonDeadlineExceeded, FailureDetail: "stage timed out"}
					}
					return domain.AgentOutput{}, &fail
				}
				agentOut.Artifacts = applied
				return agentOut, nil
			}
			switch ev.Kind {
			case agents.EventDeltaText:
				o.publish(wfID, domain.StageStreamChunkEvent{
					Base: o.base(wfID, domain.EventStageStreamChunk), StageID: stage.StageID,
					Delta: ev.DeltaText, Channel: ev.Channel,
				})
			case agents.EventArtifact:
				appliedArtifact, aerr := o.Workspace.ApplyArtifact(req.SessionID, ev.Artifact)
				if aerr != nil {
					fail := classifyFailure(aerr)
					return domain.AgentOutput{}, &fail
				}
				applied = append(applied, appliedArtifact)
				o.publish(wfID, domain.ArtifactAppliedEvent{
					Base: o.base(wfID, domain.EventArtifactApplied), StageID: stage.StageID, Artifact: appliedArtifact,
				})
			case agents.EventContextWrite:
				agentOut.ContextWrites[ev.ContextWriteKey] = ev.ContextWriteValue
				o.noteWriteDescription(wfID, ev.ContextWriteKey, ev.Description)
			case agents.EventToolCallRequest:
				res := o.dispatchTool(ctx, ev.ToolCall)
				select {
				case ev.ToolCallReply <- res:
				case <-ctx.Done():
				}
			case agents.EventHITLRequest:
				resp := o.dispatchHITL(wfID, stage.StageID, ev.HITLRequest)
				select {
				case ev.HITLReply <- resp:
				case <-ctx.Done():
				}
			case agents.EventDone:
				sawDone = true
				merged := mergeOutput(agentOut, ev.Output)
				agentOut = merged
			}
		}
	}
}

// mergeOutput combines the handler's terminal Output with the
// ContextWrites collected incrementally from EventContextWrite, which the
// handler's Output field does not repeat.
func mergeOutput(collected, final domain.AgentOutput) domain.AgentOutput {
	out := final
	if out.ContextWrites == nil {
		out.ContextWrites = collected.ContextWrites
	} else {
		for k, v := range collected.ContextWrites {
			out.ContextWrites[k] = v
		}
	}
	return out
}

func (o *Orchestrator) dispatchTool(ctx context.Context, call domain.ToolCall) agents.ToolCallResult {
	res, err := o.Tools.Execute(ctx, call.Name, call.Params)
	if err != nil {
		return agents.ToolCallResult{Success: false, Error: err.Error()}
	}
	return agents.ToolCallResult{Success: res.Success, Output: res.Output, Error: res.Error}
}

func (o *Orchestrator) dispatchHITL(wfID domain.WorkflowID, stageID domain.StageID, reqTemplate domain.HITLRequest) domain.HITLResponse {
	req := reqTemplate
	req.WorkflowID = wfID
	req.StageID = stageID
	if req.RequestID == "" {
		req.RequestID = string(wfID) + ":" + string(stageID) + ":" + time.Now().UTC().Format(time.RFC3339Nano)
	}
	req.CreatedAt = domain.Now()

	ch := o.Broker.Register(context.Background(), req)
	o.publish(wfID, domain.HITLRequestedEvent{Base: o.base(wfID, domain.EventHITLRequested), Request: req})
	if state := o.stateFor(wfID); state != nil {
		cp := req
		state.PendingHITL = &cp
		state.Status = domain.WorkflowPausedHITL
		o.checkpoint(context.Background(), state)
	}

	resp, ok := <-ch
	if state := o.stateFor(wfID); state != nil {
		state.PendingHITL = nil
		state.Status = domain.WorkflowRunning
		o.checkpoint(context.Background(), state)
	}
	if !ok {
		return domain.HITLResponse{RequestID: req.RequestID, Action: domain.ActionCancel}
	}
	o.publish(wfID, domain.HITLResolvedEvent{Base: o.base(wfID, domain.EventHITLResolved), RequestID: req.RequestID, Response: resp})
	return resp
}

func classifyFailure(err error) runStageOutput {
	kind := apperr.KindOf(err)
	out := runStageOutput{FailureDetail: err.Error()}
	switch kind {
	case apperr.KindTransient:
		out.Retriable = true
	case apperr.KindResourceExhausted:
		out.FailureReason = domain.ReasonResourceExhausted
	case apperr.KindDeadlineExceeded:
		out.FailureReason = domain.ReasonDeadlineExceeded
	case apperr.KindIntegrity:
		out.FailureReason = domain.ReasonIntegrity
	case apperr.KindCancelled:
		out.FailureReason = domain.ReasonNone
	default:
		out.FailureReason = domain.ReasonPermanentError
	}
	return out
}

// ensure engine.ActivityFunc's signature is satisfied.
var _ engine.ActivityFunc = (*Orchestrator)(nil).runStageActivity
