package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/codeforge/assistant/runtime/engine"
	"github.com/codeforge/assistant/runtime/telemetry"
)

// workflowContext adapts a Temporal workflow.Context to engine.WorkflowContext.
type workflowContext struct {
	e          *Engine
	ctx        workflow.Context
	workflowID string
	runID      string
}

func (e *Engine) newWorkflowContext(tctx workflow.Context) *workflowContext {
	info := workflow.GetInfo(tctx)
	wc := &workflowContext{
		e:          e,
		ctx:        tctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
	}
	e.workflowContexts.Store(wc.runID, wc)
	return wc
}

func (w *workflowContext) Context() context.Context {
	return engine.WithWorkflowContext(context.Background(), w)
}

func (w *workflowContext) WorkflowID() string         { return w.workflowID }
func (w *workflowContext) RunID() string              { return w.runID }
func (w *workflowContext) Logger() telemetry.Logger   { return w.e.tel.Logger }
func (w *workflowContext) Metrics() telemetry.Metrics { return w.e.tel.Metrics }
func (w *workflowContext) Tracer() telemetry.Tracer   { return w.e.tel.Tracer }
func (w *workflowContext) Now() time.Time             { return workflow.Now(w.ctx) }

func (w *workflowContext) ExecuteActivity(_ context.Context, req engine.ActivityRequest, result any) error {
	actx := workflow.WithActivityOptions(w.ctx, w.activityOptionsFor(req))
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return normalizeTemporalError(fut.Get(actx, result))
}

func (w *workflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	actx := workflow.WithActivityOptions(w.ctx, w.activityOptionsFor(req))
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &future{future: fut, ctx: actx}, nil
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	return &signalChannel{ctx: w.ctx, ch: workflow.GetSignalChannel(w.ctx, name)}
}

func (w *workflowContext) activityOptionsFor(req engine.ActivityRequest) workflow.ActivityOptions {
	defaults := w.e.activityDefaultsFor(req.Name)

	queue := req.Queue
	if queue == "" {
		queue = defaults.Queue
	}
	if queue == "" {
		queue = w.e.defaultQueue
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	if timeout == 0 {
		timeout = time.Minute
	}

	retry := req.RetryPolicy
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = defaults.RetryPolicy.MaxAttempts
	}
	if retry.InitialInterval == 0 {
		retry.InitialInterval = defaults.RetryPolicy.InitialInterval
	}
	if retry.BackoffCoefficient == 0 {
		retry.BackoffCoefficient = defaults.RetryPolicy.BackoffCoefficient
	}

	return workflow.ActivityOptions{
		ScheduleToStartTimeout: timeout,
		StartToCloseTimeout:    timeout,
		TaskQueue:              queue,
		RetryPolicy:            convertRetryPolicy(retry),
	}
}

type future struct {
	future workflow.Future
	ctx    workflow.Context
}

func (f *future) Get(_ context.Context, result any) error {
	return normalizeTemporalError(f.future.Get(f.ctx, result))
}

func (f *future) IsReady() bool { return f.future.IsReady() }

type signalChannel struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

func (s *signalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}
