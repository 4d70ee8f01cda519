// Package aggregator implements the Aggregator agent handler (spec.md §4.4):
// the final stage of a planned workflow, which assembles a user-facing
// summary from the artifacts and gate results accumulated in shared context.
// It never produces new artifacts.
package aggregator

import (
	"context"
	"encoding/json"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/llm"
)

const systemPrompt = `You are summarizing a completed coding task for the user. You
are given the files that were changed and the outcomes of review, testing,
and security scanning. Write a concise, plain-text summary of what changed
and flag anything the user should double check. Do not use JSON; respond
with plain text only.`

// Handler implements agents.Handler for the aggregator role.
type Handler struct {
	deps agents.LLMDeps
}

// New constructs an Aggregator handler.
func New(deps agents.LLMDeps) *Handler {
	return &Handler{deps: deps}
}

// Role implements agents.Handler.
func (h *Handler) Role() domain.AgentRole { return domain.RoleAggregator }

// Execute implements agents.Handler.
func (h *Handler) Execute(ctx context.Context, in agents.StageInput) (<-chan agents.HandlerEvent, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Original request: " + in.Request.UserMessage})

	var paths []string
	for _, a := range in.PriorArtifacts {
		paths = append(paths, string(a.Action)+" "+a.RelativePath)
	}
	if len(paths) > 0 {
		if b, err := json.Marshal(paths); err == nil {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Files changed: " + string(b)})
		}
	}
	for _, key := range []string{"review", "qa_result", "security_findings"} {
		if v, ok := in.Context.Get(key, string(domain.RoleAggregator)); ok {
			if b, err := json.Marshal(v); err == nil {
				messages = append(messages, llm.Message{Role: llm.RoleUser, Content: key + ": " + string(b)})
			}
		}
	}

	out := make(chan agents.HandlerEvent, 8)
	go func() {
		defer close(out)
		text, metrics, err := agents.CollectText(ctx, out, h.deps.Client, messages, llm.Options{
			Model:         h.deps.Model,
			MaxTokens:     1024,
			StripThinking: true,
		})
		if err != nil {
			return
		}

		select {
		case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
			Role:    domain.RoleAggregator,
			Text:    text,
			Metrics: metrics,
		}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
