// Package apperr defines the error taxonomy shared across the orchestration
// runtime. Kinds classify failures for retry/escalation decisions; they are
// not Go types, so callers use errors.As to recover a *apperr.Error and
// inspect its Kind.
//
// No third-party errors library is used here: the teacher repo wraps plain
// stdlib errors throughout runtime/agent/** (e.g. interrupt.Controller) and
// carries no errors package in its own require block for this concern.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of §7's propagation rules:
// transient errors are retried inside the engine, permanent ones surface as
// a single terminal event.
type Kind string

const (
	// KindInvalidInput is rejected at the API boundary with no side effects.
	KindInvalidInput Kind = "invalid_input"
	// KindTransient covers LLM timeouts, endpoint 5xx, tool timeouts, I/O EAGAIN.
	KindTransient Kind = "transient"
	// KindPermanent covers handler-signaled or schema-violation failures.
	KindPermanent Kind = "permanent"
	// KindResourceExhausted covers context cap, memory cap, and queue backpressure.
	KindResourceExhausted Kind = "resource_exhausted"
	// KindCancelled is never surfaced as an error kind to end users; it yields
	// workflow_cancelled instead.
	KindCancelled Kind = "cancelled"
	// KindDeadlineExceeded marks a workflow that ran past its wall-clock budget.
	KindDeadlineExceeded Kind = "deadline_exceeded"
	// KindIntegrity covers path traversal, invalid encoding, and checksum
	// mismatches on resume. Fatal for the workflow; the session is preserved.
	KindIntegrity Kind = "integrity"
)

// Error is the concrete error type carrying a Kind plus machine-readable
// details. User-visible messages never include the wrapped cause; debug
// details belong in server logs only (§7 propagation rule).
type Error struct {
	Kind    Kind
	Reason  string
	Details map[string]any
	cause   error
}

// New constructs an Error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap constructs an Error of the given kind around a lower-level cause. The
// cause remains available via errors.Unwrap for server-side logging but is
// never included in Error().
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver for
// chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As traverse it.
func (e *Error) Unwrap() error { return e.cause }

// Retriable reports whether the engine's retry policy should retry the
// stage that produced this error. Only transient failures are retriable;
// everything else is terminal for the attempt.
func (e *Error) Retriable() bool { return e.Kind == KindTransient }

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindPermanent for errors
// that were not constructed through this package (an unclassified failure is
// treated as terminal, never silently retried).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindPermanent
}
