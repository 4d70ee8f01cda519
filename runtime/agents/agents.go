// Package agents defines the common shape every Agent Handler (C4)
// implements: a capability interface plus tagged HandlerEvent variants,
// grounded on the teacher's capability-interface design note (spec.md §9
// "polymorphism across agent handlers") and the shape of
// runtime/agent/runtime's handler dispatch. Concrete handlers live in
// sibling packages (supervisor, planner, coder, reviewer, qagate,
// securitygate, refiner, aggregator); the Workflow Engine depends only on
// this package's Handler interface, never on a concrete handler type.
package agents

import (
	"context"
	"time"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/llm"
)

// StageInput is what the Workflow Engine hands a handler on Execute
// (spec.md §4.7 step 1: "resolve inputs from shared context").
type StageInput struct {
	Stage       domain.Stage
	Request     domain.Request
	Context     ContextReader
	// PriorArtifacts carries prior-stage artifacts for handlers that refine
	// or review them (Reviewer, QAGate, SecurityGate, Refiner, Aggregator).
	PriorArtifacts []domain.Artifact
	// HITLResponse carries a resumed checkpoint's answer when this stage
	// previously raised one and is re-entering after resume.
	HITLResponse *domain.HITLResponse
}

// ContextReader is the read-only view of Shared Context (C5) a handler
// receives; it is intentionally narrower than context.Store's full API so
// handlers cannot bypass the engine's write-commit ordering (spec.md §9).
type ContextReader interface {
	Get(key, requestingAgent string) (any, bool)
}

// HandlerEventKind tags one HandlerEvent variant (spec.md §4.4).
type HandlerEventKind string

const (
	EventDeltaText        HandlerEventKind = "delta_text"
	EventArtifact         HandlerEventKind = "artifact"
	EventContextWrite     HandlerEventKind = "context_write"
	EventToolCallRequest  HandlerEventKind = "tool_call_request"
	EventHITLRequest      HandlerEventKind = "hitl_request"
	EventDone             HandlerEventKind = "done"
)

// HandlerEvent is the tagged union a Handler streams to the Workflow Engine
// (spec.md §4.4). Exactly one payload field is populated per Kind.
type HandlerEvent struct {
	Kind HandlerEventKind

	DeltaText string
	Channel   string // "" for user text, "thinking" for reasoning deltas

	Artifact domain.Artifact

	ContextWriteKey   string
	ContextWriteValue any
	Description       string

	ToolCall domain.ToolCall
	// ToolCallReply is populated by the handler alongside a ToolCallRequest
	// event; the Workflow Engine executes the tool (C1) and sends exactly
	// one ToolCallResult back on this channel before the handler's
	// goroutine is allowed to proceed. This models spec.md §4.7 step 3
	// ("intercept tool_call_request; validate and dispatch through C1...")
	// as a synchronous rendezvous within the handler's own streaming
	// goroutine, the way Go's generator-via-channel idiom expresses a
	// blocking "await" without an async/await keyword.
	ToolCallReply chan ToolCallResult

	// HITLReply is populated alongside a HITLRequest event; the engine
	// sends the resolved/cancelled response back on this channel once C6
	// delivers it (spec.md §4.7 step 4).
	HITLReply chan domain.HITLResponse

	HITLRequest domain.HITLRequest

	Output domain.AgentOutput // populated only on EventDone
}

// ToolCallResult is the engine's reply to a tool_call_request event.
type ToolCallResult struct {
	Success bool
	Output  any
	Error   string
}

// Handler is the capability every agent role implements (spec.md §4.4,
// §9's "capability set: execute, supported_inputs, role" design note).
type Handler interface {
	Role() domain.AgentRole
	// Execute streams HandlerEvents for one stage invocation. The returned
	// channel is closed once a Done event has been sent, or without one when
	// ctx is cancelled or the handler's LLM call fails; the Workflow Engine
	// treats a close without Done as a failed attempt. Handlers do not schedule themselves (spec.md §4.4); the
	// Workflow Engine drives them.
	Execute(ctx context.Context, in StageInput) (<-chan HandlerEvent, error)
}

// LLMDeps bundles the collaborators most handlers need: an LLM client and
// the model/options to use. Concrete handler constructors take this plus
// any role-specific dependency (e.g. the Tool Registry for Coder).
type LLMDeps struct {
	Client llm.Client
	Model  string
}

// CollectText drives one ChatStream call to completion, forwarding every
// text/thinking delta onto out as it arrives (so the Workflow Engine can
// publish live stage_stream_chunk events per spec.md §4.7 step 2) and
// returning the accumulated visible text plus usage metrics once the stream
// ends. Every LLM-backed handler (Supervisor, Planner, Coder, Reviewer,
// Refiner, Aggregator) shares
// this loop rather than re-implementing the accumulate-while-forwarding
// pattern.
func CollectText(ctx context.Context, out chan<- HandlerEvent, client llm.Client, messages []llm.Message, opts llm.Options) (string, domain.Metrics, error) {
	start := time.Now()
	chunks, err := client.ChatStream(ctx, messages, opts)
	if err != nil {
		return "", domain.Metrics{}, err
	}

	var text []byte
	var usage llm.Usage
	for chunk := range chunks {
		switch chunk.Kind {
		case llm.ChunkText:
			text = append(text, chunk.Delta...)
			select {
			case out <- HandlerEvent{Kind: EventDeltaText, DeltaText: chunk.Delta}:
			case <-ctx.Done():
				return string(text), domain.Metrics{}, ctx.Err()
			}
		case llm.ChunkThinking:
			select {
			case out <- HandlerEvent{Kind: EventDeltaText, DeltaText: chunk.Delta, Channel: "thinking"}:
			case <-ctx.Done():
				return string(text), domain.Metrics{}, ctx.Err()
			}
		case llm.ChunkUsage:
			usage = chunk.Usage
		}
	}

	metrics := domain.Metrics{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		ElapsedMillis:    time.Since(start).Milliseconds(),
	}
	return string(text), metrics, nil
}

// ExtractJSON returns the first top-level JSON object or array substring of
// raw, tolerant of surrounding prose or a fenced ```json code block. Handlers
// that ask the model for structured JSON inside otherwise free-form text use
// this before unmarshalling.
func ExtractJSON(raw string) string {
	s := raw
	for _, fence := range []string{"```json", "```"} {
		if idx := indexOf(s, fence); idx >= 0 {
			s = s[idx+len(fence):]
			break
		}
	}
	if idx := lastIndexOf(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}
	openRune, closeRune := byte('{'), byte('}')
	if s[start] == '[' {
		openRune, closeRune = '[', ']'
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case openRune:
			depth++
		case closeRune:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func lastIndexOf(s, substr string) int {
	last := -1
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			last = i
		}
	}
	return last
}
