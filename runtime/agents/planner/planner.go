// Package planner implements the optional Planner agent handler (spec.md
// §4.4): given the Supervisor's abstract Plan, it expands the coding work
// into a concrete, file-level step list the Coder can follow directly. A
// workflow may omit this stage entirely for simple requests (SPEC_FULL.md
// §4.4); when present it always runs before Coder.
package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/llm"
)

const systemPrompt = `You are the technical planner for a coding assistant. Given
the user's request, break the work into a concrete, ordered list of file-level
steps. Respond with a single JSON object, no surrounding prose:

{"steps":[{"path":"relative/file/path.go","action":"create|modify|delete","summary":"what changes and why"}]}`

// Handler implements agents.Handler for the planner role.
type Handler struct {
	deps agents.LLMDeps
}

// New constructs a Planner handler.
func New(deps agents.LLMDeps) *Handler {
	return &Handler{deps: deps}
}

// Role implements agents.Handler.
func (h *Handler) Role() domain.AgentRole { return domain.RolePlanner }

// Step is one file-level unit of work the planner hands to the Coder.
type Step struct {
	Path    string `json:"path"`
	Action  string `json:"action"`
	Summary string `json:"summary"`
}

type stepsDoc struct {
	Steps []Step `json:"steps"`
}

// Execute implements agents.Handler.
func (h *Handler) Execute(ctx context.Context, in agents.StageInput) (<-chan agents.HandlerEvent, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: in.Request.UserMessage},
	}
	if plan, ok := in.Context.Get("plan", string(domain.RolePlanner)); ok {
		if p, ok := plan.(domain.Plan); ok {
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("The high-level plan has %d stages already decided; focus only on the file-level breakdown for the coder stage.", len(p.Stages)),
			})
		}
	}

	out := make(chan agents.HandlerEvent, 8)
	go func() {
		defer close(out)
		text, metrics, err := agents.CollectText(ctx, out, h.deps.Client, messages, llm.Options{
			Model:         h.deps.Model,
			MaxTokens:     2048,
			StripThinking: true,
		})
		if err != nil {
			return
		}

		var doc stepsDoc
		obj := agents.ExtractJSON(text)
		if obj != "" {
			_ = json.Unmarshal([]byte(obj), &doc)
		}

		select {
		case out <- agents.HandlerEvent{
			Kind:              agents.EventContextWrite,
			ContextWriteKey:   "plan_steps",
			ContextWriteValue: doc.Steps,
			Description:       "planner file-level steps",
		}:
		case <-ctx.Done():
			return
		}

		select {
		case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
			Role:          domain.RolePlanner,
			Metrics:       metrics,
			ContextWrites: map[string]any{"plan_steps": doc.Steps},
		}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
