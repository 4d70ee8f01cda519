// Package llm implements the LLM Adapter (C3): a single provider-agnostic
// streaming chat interface, think-tag stripping, and usage normalization
// (spec.md §4.3). Two concrete adapters live in runtime/llm/anthropic and
// runtime/llm/openai, each wrapping the teacher's respective provider SDK
// client the way features/model/{anthropic,openai} do, generalized to this
// narrower interface (no tool-use wiring inside the adapter itself — that
// stays at the Workflow Engine/Agent Handler level per spec.md §9's
// "no polymorphism across handlers" note).
package llm

import "context"

// Role names a message's conversational role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the conversation sent to chat_stream.
type Message struct {
	Role    Role
	Content string
}

// Options configures one chat_stream call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// StripThinking controls whether paired <think>…</think> segments are
	// removed from the emitted text channel and re-homed onto Thinking
	// chunks (spec.md §4.3).
	StripThinking bool
}

// Usage normalizes provider-specific token accounting (spec.md §4.3).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChunkKind classifies one streamed chunk.
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkThinking ChunkKind = "thinking"
	ChunkUsage    ChunkKind = "usage"
	ChunkDone     ChunkKind = "done"
)

// Chunk is one element of a ChatStream. Exactly one of Delta/Usage is
// populated depending on Kind.
type Chunk struct {
	Kind  ChunkKind
	Delta string // user-facing text, or stripped thinking text when Kind == ChunkThinking
	Usage Usage
}

// Client is the provider-agnostic interface every LLM adapter implements
// (spec.md §4.3's single chat_stream interface).
type Client interface {
	// ChatStream streams a completion for messages. The returned channel is
	// closed when the stream ends (error or normal completion); the error
	// return reports any failure starting the stream. ctx governs
	// cancellation and the caller's deadline (spec.md §5 suspension point).
	ChatStream(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, error)
}
