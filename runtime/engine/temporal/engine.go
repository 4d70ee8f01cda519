// Package temporal adapts Temporal (go.temporal.io/sdk) as a durable
// runtime/engine.Engine backend, for multi-process production deployments
// that need workflow state to survive process restarts (spec.md §7's
// durability requirements). Adapted from the teacher's
// runtime/agent/engine/temporal, trimmed to the narrower WorkflowContext this
// spec's orchestrator needs (no child workflows, no typed planner/tool
// activity helpers — those live at the orchestrator layer here, not the
// engine layer).
package temporal

import (
	"context"
	"fmt"
	"sync"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/codeforge/assistant/runtime/engine"
	"github.com/codeforge/assistant/runtime/telemetry"
)

// Options configures the Temporal engine adapter.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions is
	// used to lazily construct one.
	Client client.Client
	// ClientOptions constructs the client when Client is nil.
	ClientOptions *client.Options
	// TaskQueue is the default queue for workflows/activities that omit one.
	TaskQueue string
	// WorkerOptions is forwarded to worker.New.
	WorkerOptions worker.Options
	// Telemetry supplies the Logger/Metrics/Tracer handed to every
	// WorkflowContext; the zero value uses telemetry.Noop().
	Telemetry telemetry.Set
}

// Engine implements engine.Engine using Temporal as the durable backend. One
// worker is created per unique task queue, lazily, on first registration.
type Engine struct {
	client       client.Client
	closeClient  bool
	defaultQueue string
	workerOpts   worker.Options
	tel          telemetry.Set

	mu              sync.Mutex
	workers         map[string]worker.Worker
	workersStarted  bool
	activityOptions map[string]engine.ActivityOptions

	workflowContexts sync.Map // runID -> engine.WorkflowContext
}

// New constructs a Temporal engine adapter.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: default task queue is required")
	}
	tel := opts.Telemetry
	if tel.Logger == nil {
		tel = telemetry.Noop()
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: client or client options required")
		}
		var err error
		cli, err = client.NewLazyClient(*opts.ClientOptions)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		closeClient = true
	}

	return &Engine{
		client:          cli,
		closeClient:     closeClient,
		defaultQueue:    opts.TaskQueue,
		workerOpts:      opts.WorkerOptions,
		tel:             tel,
		workers:         make(map[string]worker.Worker),
		activityOptions: make(map[string]engine.ActivityOptions),
	}, nil
}

func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid workflow definition")
	}
	queue := def.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	w, err := e.workerForQueue(queue)
	if err != nil {
		return err
	}
	w.RegisterWorkflowWithOptions(func(tctx workflow.Context, input any) (any, error) {
		wfCtx := e.newWorkflowContext(tctx)
		defer e.workflowContexts.Delete(wfCtx.RunID())
		return def.Handler(wfCtx, input)
	}, workflow.RegisterOptions{Name: def.Name})
	return nil
}

func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid activity definition")
	}
	queue := def.Options.Queue
	if queue == "" {
		queue = e.defaultQueue
	}
	w, err := e.workerForQueue(queue)
	if err != nil {
		return err
	}
	w.RegisterActivityWithOptions(func(actx context.Context, input any) (any, error) {
		info := activity.GetInfo(actx)
		if wf, ok := e.workflowContexts.Load(info.WorkflowExecution.RunID); ok {
			if typed, ok := wf.(engine.WorkflowContext); ok {
				actx = engine.WithWorkflowContext(actx, typed)
			}
		}
		return def.Handler(engine.WithActivityContext(actx), input)
	}, activity.RegisterOptions{Name: def.Name})

	e.mu.Lock()
	e.activityOptions[def.Name] = def.Options
	e.mu.Unlock()
	return nil
}

func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, fmt.Errorf("temporal engine: workflow name required")
	}
	e.ensureWorkersStarted()

	queue := req.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	startOpts := client.StartWorkflowOptions{ID: req.ID, TaskQueue: queue}
	if rp := convertRetryPolicy(req.RetryPolicy); rp != nil {
		startOpts.RetryPolicy = rp
	}
	run, err := e.client.ExecuteWorkflow(ctx, startOpts, req.Workflow, req.Input)
	if err != nil {
		return nil, err
	}
	return &workflowHandle{run: run, client: e.client}, nil
}

// Worker starts all registered workers; call once after every
// RegisterWorkflow/RegisterActivity call during process startup.
func (e *Engine) Worker() *WorkerController { return &WorkerController{engine: e} }

// Close shuts down the client if this Engine created it.
func (e *Engine) Close() {
	if e.closeClient && e.client != nil {
		e.client.Close()
	}
}

func (e *Engine) workerForQueue(queue string) (worker.Worker, error) {
	if queue == "" {
		queue = e.defaultQueue
	}
	if queue == "" {
		return nil, fmt.Errorf("temporal engine: no task queue configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.workers[queue]; ok {
		return w, nil
	}
	w := worker.New(e.client, queue, e.workerOpts)
	e.workers[queue] = w
	if e.workersStarted {
		go e.runWorker(w, queue)
	}
	return w, nil
}

func (e *Engine) ensureWorkersStarted() {
	e.mu.Lock()
	if e.workersStarted {
		e.mu.Unlock()
		return
	}
	e.workersStarted = true
	workers := make(map[string]worker.Worker, len(e.workers))
	for q, w := range e.workers {
		workers[q] = w
	}
	e.mu.Unlock()
	for queue, w := range workers {
		go e.runWorker(w, queue)
	}
}

func (e *Engine) runWorker(w worker.Worker, queue string) {
	if err := w.Run(worker.InterruptCh()); err != nil {
		e.tel.Logger.Error(context.Background(), "temporal worker exited", "queue", queue, "err", err)
	}
}

func (e *Engine) activityDefaultsFor(name string) engine.ActivityOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activityOptions[name]
}

// WorkerController starts/stops all workers managed by an Engine.
type WorkerController struct{ engine *Engine }

func (c *WorkerController) Start() { c.engine.ensureWorkersStarted() }

func (c *WorkerController) Stop() {
	c.engine.mu.Lock()
	workers := make([]worker.Worker, 0, len(c.engine.workers))
	for _, w := range c.engine.workers {
		workers = append(workers, w)
	}
	c.engine.mu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
}

func convertRetryPolicy(r engine.RetryPolicy) *sdktemporal.RetryPolicy {
	if r.MaxAttempts == 0 && r.InitialInterval == 0 && r.BackoffCoefficient == 0 {
		return nil
	}
	policy := &sdktemporal.RetryPolicy{}
	if r.MaxAttempts > 0 {
		policy.MaximumAttempts = int32(r.MaxAttempts)
	}
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	if r.BackoffCoefficient > 0 {
		policy.BackoffCoefficient = r.BackoffCoefficient
	}
	return policy
}

// normalizeTemporalError maps Temporal's cancellation error to the stdlib
// context.Canceled so callers can classify cancellation uniformly across
// engine backends (matches the orchestrator's apperr.KindCancelled check).
func normalizeTemporalError(err error) error {
	if err == nil {
		return nil
	}
	if sdktemporal.IsCanceledError(err) {
		return context.Canceled
	}
	return err
}

type workflowHandle struct {
	run    client.WorkflowRun
	client client.Client
}

func (h *workflowHandle) Wait(ctx context.Context, result any) error {
	return normalizeTemporalError(h.run.Get(ctx, result))
}

func (h *workflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *workflowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}
