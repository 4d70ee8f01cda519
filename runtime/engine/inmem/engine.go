// Package inmem provides an in-process Engine implementation for local
// development, single-process deployments, and tests. It is not replay-safe;
// workflow functions execute exactly once, with no durability across process
// restarts. Adapted from the teacher's runtime/agent/engine/inmem, trimmed of
// the ChildWorkflow/RunStatus machinery the generated-code use case needed
// and this orchestrator does not.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/codeforge/assistant/runtime/engine"
	"github.com/codeforge/assistant/runtime/telemetry"
)

type eng struct {
	mu         sync.RWMutex
	workflows  map[string]engine.WorkflowDefinition
	activities map[string]activityEntry
	telemetry  telemetry.Set
}

type activityEntry struct {
	handler engine.ActivityFunc
	opts    engine.ActivityOptions
}

// New returns an in-memory Engine. tel supplies the Logger/Metrics/Tracer
// handed to every WorkflowContext; pass telemetry.Noop() when none is wired.
func New(tel telemetry.Set) engine.Engine {
	return &eng{
		workflows:  make(map[string]engine.WorkflowDefinition),
		activities: make(map[string]activityEntry),
		telemetry:  tel,
	}
}

func (e *eng) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid workflow definition")
	}
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("inmem: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *eng) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid activity definition")
	}
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmem: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = activityEntry{handler: def.Handler, opts: def.Options}
	return nil
}

func (e *eng) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: workflow %q not registered", req.Workflow)
	}
	if req.ID == "" {
		return nil, errors.New("inmem: workflow id required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	wc := &wfCtx{
		ctx:    runCtx,
		cancel: cancel,
		id:     req.ID,
		runID:  req.ID,
		eng:    e,
		sigs:   make(map[string]*signalChan),
		tel:    e.telemetry,
	}
	h := &handle{done: make(chan struct{}), wfCtx: wc}

	go func() {
		defer close(h.done)
		res, err := def.Handler(wc, req.Input)
		h.mu.Lock()
		h.result, h.err = res, err
		h.mu.Unlock()
	}()
	return h, nil
}

type wfCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
	id     string
	runID  string
	eng    *eng
	tel    telemetry.Set

	sigMu sync.Mutex
	sigs  map[string]*signalChan
}

func (w *wfCtx) Context() context.Context   { return w.ctx }
func (w *wfCtx) WorkflowID() string         { return w.id }
func (w *wfCtx) RunID() string              { return w.runID }
func (w *wfCtx) Logger() telemetry.Logger   { return w.tel.Logger }
func (w *wfCtx) Metrics() telemetry.Metrics { return w.tel.Metrics }
func (w *wfCtx) Tracer() telemetry.Tracer   { return w.tel.Tracer }
func (w *wfCtx) Now() time.Time             { return time.Now() }

func (w *wfCtx) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *wfCtx) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	w.eng.mu.RLock()
	entry, ok := w.eng.activities[req.Name]
	w.eng.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: activity %q not registered", req.Name)
	}
	actCtx := engine.WithActivityContext(engine.WithWorkflowContext(ctx, w))
	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		actCtx, cancel = context.WithTimeout(actCtx, req.Timeout)
	}

	f := &future{ready: make(chan struct{})}
	attempts := req.RetryPolicy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	go func() {
		defer close(f.ready)
		defer cancel() // the goroutine owns the activity timeout's cancellation
		var res any
		var err error
		interval := req.RetryPolicy.InitialInterval
		for attempt := 1; attempt <= attempts; attempt++ {
			res, err = entry.handler(actCtx, req.Input)
			if err == nil {
				break
			}
			if attempt == attempts || actCtx.Err() != nil {
				break
			}
			if interval > 0 {
				time.Sleep(interval)
				coeff := req.RetryPolicy.BackoffCoefficient
				if coeff < 1 {
					coeff = 1
				}
				interval = time.Duration(float64(interval) * coeff)
			}
		}
		f.mu.Lock()
		f.result, f.err = res, err
		f.mu.Unlock()
	}()
	return f, nil
}

func (w *wfCtx) SignalChannel(name string) engine.SignalChannel {
	w.sigMu.Lock()
	defer w.sigMu.Unlock()
	ch, ok := w.sigs[name]
	if !ok {
		ch = &signalChan{ch: make(chan any, 4)}
		w.sigs[name] = ch
	}
	return ch
}

type future struct {
	mu     sync.Mutex
	ready  chan struct{}
	result any
	err    error
}

func (f *future) Get(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ready:
		f.mu.Lock()
		defer f.mu.Unlock()
		assign(result, f.result)
		return f.err
	}
}

func (f *future) IsReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

type signalChan struct{ ch chan any }

func (s *signalChan) Receive(ctx context.Context, dest any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case v := <-s.ch:
		assign(dest, v)
		return nil
	}
}

func (s *signalChan) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		assign(dest, v)
		return true
	default:
		return false
	}
}

type handle struct {
	mu     sync.Mutex
	done   chan struct{}
	result any
	err    error
	wfCtx  *wfCtx
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		assign(result, h.result)
		return h.err
	}
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	ch := h.wfCtx.SignalChannel(name).(*signalChan)
	select {
	case ch.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errors.New("inmem: workflow already completed")
	}
}

func (h *handle) Cancel(_ context.Context) error {
	h.wfCtx.cancel()
	return nil
}

func assign(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if !sv.IsValid() {
		return
	}
	if sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return
	}
	if dv.Elem().Kind() == reflect.Interface && sv.Type().Implements(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}
