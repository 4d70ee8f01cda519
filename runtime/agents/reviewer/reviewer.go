// Package reviewer implements the Reviewer agent handler (spec.md §4.4): it
// reads the Coder's candidate artifacts and produces a list of issues and
// suggestions, setting NeedsRefine when the refinement loop should run again
// (spec.md §4.7's refinement loop, bounded at 3 iterations by the Workflow
// Engine).
package reviewer

import (
	"context"
	"encoding/json"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/llm"
)

const systemPrompt = `You are a meticulous code reviewer. Given a set of candidate
file artifacts, review them for correctness, style, and missing
functionality relative to the user's request. Respond with a single JSON
object, no surrounding prose:

{"issues":["<problem description>"],"suggestions":["<improvement suggestion>"],"needs_refine":true|false}

Set needs_refine to true only when an issue is significant enough that the
code should not ship as-is.`

// Handler implements agents.Handler for the reviewer role.
type Handler struct {
	deps agents.LLMDeps
}

// New constructs a Reviewer handler.
func New(deps agents.LLMDeps) *Handler {
	return &Handler{deps: deps}
}

// Role implements agents.Handler.
func (h *Handler) Role() domain.AgentRole { return domain.RoleReviewer }

type reviewDoc struct {
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	NeedsRefine bool     `json:"needs_refine"`
}

// Execute implements agents.Handler.
func (h *Handler) Execute(ctx context.Context, in agents.StageInput) (<-chan agents.HandlerEvent, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Original request: " + in.Request.UserMessage})
	for _, a := range in.PriorArtifacts {
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "File " + a.RelativePath + " (" + string(a.Action) + "):\n" + a.Content,
		})
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

		var doc reviewDoc
		if obj := agents.ExtractJSON(text); obj != "" {
			_ = json.Unmarshal([]byte(obj), &doc)
		}

		select {
		case out <- agents.HandlerEvent{
			Kind:              agents.EventContextWrite,
			ContextWriteKey:   "review",
			ContextWriteValue: doc,
			Description:       "reviewer findings",
		}:
		case <-ctx.Done():
			return
		}

		select {
		case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
			Role:          domain.RoleReviewer,
			Issues:        doc.Issues,
			NeedsRefine:   doc.NeedsRefine,
			Metrics:       metrics,
			ContextWrites: map[string]any{"review": doc},
		}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
