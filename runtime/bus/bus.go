// Package bus implements the Event Bus / Streaming component (C8): per-session
// multicast of typed events to one or more subscribers, each with a bounded
// buffer, never blocking the publisher. Grounded on the teacher's
// runtime/agent/hooks.Bus fan-out/Subscriber/Subscription idiom, adapted from
// hooks' synchronous fail-fast delivery to the spec's asynchronous
// bounded-buffer, drop-with-marker delivery (spec.md §4.8, §5).
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/codeforge/assistant/runtime/domain"
)

const defaultBufferSize = 256

type (
	// Bus is the per-session multicast event bus.
	Bus struct {
		mu       sync.Mutex
		sessions map[domain.SessionID]*sessionHub
		bufSize  int

		// seq assigns dense, strictly increasing monotonic_seq values
		// per workflow (spec.md §3 invariant).
		seqMu sync.Mutex
		seq   map[domain.WorkflowID]*int64
	}

	// Subscription is a live handle returned by Subscribe. Events() yields a
	// read-only channel; Close unregisters the subscriber.
	Subscription struct {
		ch     chan domain.Event
		hub    *sessionHub
		closed int32
	}

	sessionHub struct {
		mu   sync.Mutex
		subs map[*Subscription]struct{}
	}
)

// New constructs a Bus. bufSize <= 0 uses the spec.md default of 256 events
// per subscriber.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Bus{
		sessions: make(map[domain.SessionID]*sessionHub),
		bufSize:  bufSize,
		seq:      make(map[domain.WorkflowID]*int64),
	}
}

// NextSeq returns the next monotonic_seq for workflowID, dense and strictly
// increasing as required by spec.md §3/§8 property 1.
func (b *Bus) NextSeq(workflowID domain.WorkflowID) int64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	counter, ok := b.seq[workflowID]
	if !ok {
		var zero int64
		counter = &zero
		b.seq[workflowID] = counter
	}
	*counter++
	return *counter
}

// Subscribe registers a new subscriber for sessionID and returns a
// Subscription whose Events() channel receives every event subsequently
// published for that session.
func (b *Bus) Subscribe(sessionID domain.SessionID) *Subscription {
	b.mu.Lock()
	hub, ok := b.sessions[sessionID]
	if !ok {
		hub = &sessionHub{subs: make(map[*Subscription]struct{})}
		b.sessions[sessionID] = hub
	}
	b.mu.Unlock()

	sub := &Subscription{ch: make(chan domain.Event, b.bufSize), hub: hub}
	hub.mu.Lock()
	hub.subs[sub] = struct{}{}
	hub.mu.Unlock()
	return sub
}

// Events returns the channel subscribers read from.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Close unregisters the subscription. Idempotent.
func (s *Subscription) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	close(s.ch)
}

// Publish delivers event to every subscriber of event.GetSessionID(). The
// publisher never blocks: a subscriber whose buffer is full receives a
// DroppedEvent marker (best-effort, also non-blocking) instead of the
// original event. The bus itself sends no follow-up SnapshotEvent to that
// subscriber.
func (b *Bus) Publish(_ context.Context, event domain.Event) {
	b.mu.Lock()
	hub, ok := b.sessions[event.GetSessionID()]
	b.mu.Unlock()
	if !ok {
		return
	}

	hub.mu.Lock()
	subs := make([]*Subscription, 0, len(hub.subs))
	for sub := range hub.subs {
		subs = append(subs, sub)
	}
	hub.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			// Buffer full: drop the event and best-effort notify via a marker.
			// The marker itself is also dropped silently if the buffer is still
			// full, matching the "never blocks publishers" guarantee.
			select {
			case sub.ch <- dropMarker(event):
			default:
			}
		}
	}
}

func dropMarker(event domain.Event) domain.Event {
	return domain.DroppedEvent{
		Base: domain.Base{
			EventType:  domain.EventDropped,
			WorkflowID: event.GetWorkflowID(),
			SessionID:  event.GetSessionID(),
			MonoSeq:    event.Seq(),
			Timestamp:  domain.Now(),
		},
		Count: 1,
	}
}

// CloseSession tears down every subscriber for a session, used when a
// session is deleted.
func (b *Bus) CloseSession(sessionID domain.SessionID) {
	b.mu.Lock()
	hub, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}
	hub.mu.Lock()
	subs := make([]*Subscription, 0, len(hub.subs))
	for sub := range hub.subs {
		subs = append(subs, sub)
	}
	hub.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}
