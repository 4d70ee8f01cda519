// Package broker implements the HITL Broker (C6): registers pending
// checkpoint requests, correlates responses, notifies waiting stages, and
// times them out. Generalized from the teacher's
// runtime/agent/interrupt.Controller — which exposes pause/resume/
// clarification/tool-results as four Temporal-signal-specific channels — into
// a transport-agnostic single-shot waiter keyed by request id, so the same
// Broker serves both the in-memory engine and the Temporal engine.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/codeforge/assistant/runtime/apperr"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/telemetry"
)

// LifecycleEvent is published to subscribers on create/resolve/cancel/expire
// (spec.md §4.6 "Notification"). Delivery is at-least-once.
type LifecycleEvent struct {
	Kind    domain.HITLRequestState
	Request domain.HITLRequest
	Response *domain.HITLResponse
	Reason   string
}

// Subscriber receives HITL lifecycle events for a workflow.
type Subscriber func(LifecycleEvent)

type waiter struct {
	mu       sync.Mutex
	request  domain.HITLRequest
	state    domain.HITLRequestState
	respCh   chan domain.HITLResponse
	timer    *time.Timer
}

// Broker is the concrete HITL broker. One Broker instance is shared process-
// wide; requests are namespaced by WorkflowID internally.
type Broker struct {
	log telemetry.Logger

	mu       sync.Mutex
	waiters  map[string]*waiter // by RequestID
	byWorkflow map[domain.WorkflowID][]string

	subMu sync.Mutex
	subs  map[domain.WorkflowID][]Subscriber
}

// New constructs an empty Broker.
func New(log telemetry.Logger) *Broker {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Broker{
		log:        log,
		waiters:    make(map[string]*waiter),
		byWorkflow: make(map[domain.WorkflowID][]string),
		subs:       make(map[domain.WorkflowID][]Subscriber),
	}
}

// Register records a new pending request and returns a channel that
// receives exactly one HITLResponse once resolved. Callers should also
// persist the returned request through the Workflow Engine's checkpoint at
// creation time (spec.md §4.6 "Durability") — the broker itself holds no
// durable state.
func (b *Broker) Register(ctx context.Context, req domain.HITLRequest) <-chan domain.HITLResponse {
	w := &waiter{
		request: req,
		state:   domain.HITLPending,
		respCh:  make(chan domain.HITLResponse, 1),
	}

	b.mu.Lock()
	b.waiters[req.RequestID] = w
	b.byWorkflow[req.WorkflowID] = append(b.byWorkflow[req.WorkflowID], req.RequestID)
	b.mu.Unlock()

	if req.Deadline != nil {
		d := time.Until(*req.Deadline)
		if d <= 0 {
			b.expire(req.RequestID)
		} else {
			w.timer = time.AfterFunc(d, func() { b.expire(req.RequestID) })
		}
	}

	b.notify(LifecycleEvent{Kind: domain.HITLPending, Request: req})
	return w.respCh
}

// Resolve delivers a response to a pending request. Returns apperr with
// KindPermanent/"not_pending" if the request is not currently pending
// (spec.md §4.6).
func (b *Broker) Resolve(requestID string, resp domain.HITLResponse) error {
	b.mu.Lock()
	w, ok := b.waiters[requestID]
	b.mu.Unlock()
	if !ok {
		return apperr.New(apperr.KindInvalidInput, "unknown hitl request: "+requestID)
	}

	w.mu.Lock()
	if w.state != domain.HITLPending {
		w.mu.Unlock()
		return apperr.New(apperr.KindPermanent, "not_pending")
	}
	w.state = domain.HITLResolved
	if w.timer != nil {
		w.timer.Stop()
	}
	req := w.request
	w.mu.Unlock()

	w.respCh <- resp
	b.notify(LifecycleEvent{Kind: domain.HITLResolved, Request: req, Response: &resp})
	return nil
}

// Cancel transitions a pending request to cancelled, used on workflow
// cancellation (spec.md §4.7). A no-op if the request is already terminal.
func (b *Broker) Cancel(requestID, reason string) {
	b.mu.Lock()
	w, ok := b.waiters[requestID]
	b.mu.Unlock()
	if !ok {
		return
	}
	w.mu.Lock()
	if w.state != domain.HITLPending {
		w.mu.Unlock()
		return
	}
	w.state = domain.HITLCancelled
	if w.timer != nil {
		w.timer.Stop()
	}
	req := w.request
	w.mu.Unlock()

	close(w.respCh)
	b.notify(LifecycleEvent{Kind: domain.HITLCancelled, Request: req, Reason: reason})
}

// CancelWorkflow cancels every pending request belonging to workflowID, used
// by the engine's cancellation path (spec.md §4.7).
func (b *Broker) CancelWorkflow(workflowID domain.WorkflowID, reason string) {
	b.mu.Lock()
	ids := append([]string(nil), b.byWorkflow[workflowID]...)
	b.mu.Unlock()
	for _, id := range ids {
		b.Cancel(id, reason)
	}
}

func (b *Broker) expire(requestID string) {
	b.mu.Lock()
	w, ok := b.waiters[requestID]
	b.mu.Unlock()
	if !ok {
		return
	}
	w.mu.Lock()
	if w.state != domain.HITLPending {
		w.mu.Unlock()
		return
	}
	w.state = domain.HITLExpired
	req := w.request
	w.mu.Unlock()

	close(w.respCh)
	b.notify(LifecycleEvent{Kind: domain.HITLExpired, Request: req})
}

// ListPending returns every currently pending request, optionally filtered
// by workflow id (empty string means all).
func (b *Broker) ListPending(workflowID domain.WorkflowID) []domain.HITLRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.HITLRequest
	for _, w := range b.waiters {
		w.mu.Lock()
		state, req := w.state, w.request
		w.mu.Unlock()
		if state != domain.HITLPending {
			continue
		}
		if workflowID != "" && req.WorkflowID != workflowID {
			continue
		}
		out = append(out, req)
	}
	return out
}

// Subscribe registers a lifecycle subscriber for a workflow. An empty
// workflowID subscribes to every workflow's lifecycle events, for the
// unscoped "/hitl/ws" endpoint (spec.md §6).
func (b *Broker) Subscribe(workflowID domain.WorkflowID, sub Subscriber) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subs[workflowID] = append(b.subs[workflowID], sub)
}

func (b *Broker) notify(evt LifecycleEvent) {
	b.subMu.Lock()
	subs := append([]Subscriber(nil), b.subs[evt.Request.WorkflowID]...)
	subs = append(subs, b.subs[""]...)
	b.subMu.Unlock()
	for _, sub := range subs {
		sub(evt)
	}
}
