// Package supervisor implements the Supervisor agent handler (spec.md §4.4):
// the entry point of every workflow. It reads the user message and
// conversation history and either declines to plan (a quick_qa answer with
// no downstream stages) or emits exactly one Plan as a context_write under
// key "plan". Grounded on the teacher's planner-generation prompt shape in
// runtime/agent/planner, adapted from Goa-DSL-driven plan synthesis to a
// free-form LLM JSON response parsed against a fixed schema.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/llm"
)

const systemPrompt = `You are the supervisor of a coding assistant. Given the user's
request and conversation history, decide whether it needs a multi-step
engineering plan or can be answered directly.

Respond with a single JSON object, no surrounding prose, matching exactly one
of these two shapes:

Quick answer (no code changes needed):
{"decision":"quick_qa","answer":"<direct answer text>"}

Plan (code changes needed):
{"decision":"plan","stages":[
  {"stage_id":"plan","agent_role":"planner","depends_on":[]},
  {"stage_id":"code","agent_role":"coder","depends_on":["plan"]},
  {"stage_id":"review","agent_role":"reviewer","depends_on":["code"]},
  {"stage_id":"qa","agent_role":"qa_gate","depends_on":["code"],"parallel_group":"gates"},
  {"stage_id":"security","agent_role":"security_gate","depends_on":["code"],"parallel_group":"gates"},
  {"stage_id":"aggregate","agent_role":"aggregator","depends_on":["review","qa","security"]}
]}

Use only agent_role values: planner, coder, reviewer, qa_gate, security_gate,
refiner, aggregator. Omit the planner stage for simple single-file changes.
Set "requires_hitl": true on a stage only when the change is destructive or
irreversible enough to warrant a human checkpoint before it runs.`

// Handler implements agents.Handler for the supervisor role.
type Handler struct {
	deps agents.LLMDeps
}

// New constructs a Supervisor handler.
func New(deps agents.LLMDeps) *Handler {
	return &Handler{deps: deps}
}

// Role implements agents.Handler.
func (h *Handler) Role() domain.AgentRole { return domain.RoleSupervisor }

type planDecision struct {
	Decision string        `json:"decision"`
	Answer   string        `json:"answer"`
	Stages   []planStageIn `json:"stages"`
}

type planStageIn struct {
	StageID      string   `json:"stage_id"`
	AgentRole    string   `json:"agent_role"`
	DependsOn    []string `json:"depends_on"`
	ParallelGroup string  `json:"parallel_group"`
	RequiresHITL bool     `json:"requires_hitl"`
}

// Execute implements agents.Handler.
func (h *Handler) Execute(ctx context.Context, in agents.StageInput) (<-chan agents.HandlerEvent, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	for _, turn := range in.Request.ConversationHistory {
		role := llm.RoleUser
		if turn.Role == "assistant" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.Request.UserMessage})

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

		decision, perr := parseDecision(text)

		if perr != nil || decision.Decision == "quick_qa" {
			answer := decision.Answer
			if perr != nil {
				answer = text
			}
			select {
			case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
				Role:           domain.RoleSupervisor,
				Text:           answer,
				Metrics:        metrics,
				DeclinedToPlan: true,
			}}:
			case <-ctx.Done():
			}
			return
		}

		plan := domain.Plan{Revision: 1}
		for _, s := range decision.Stages {
			deps := make([]domain.StageID, 0, len(s.DependsOn))
			for _, d := range s.DependsOn {
				deps = append(deps, domain.StageID(d))
			}
			plan.Stages = append(plan.Stages, domain.Stage{
				StageID:       domain.StageID(s.StageID),
				AgentRole:     domain.AgentRole(s.AgentRole),
				DependsOn:     deps,
				ParallelGroup: s.ParallelGroup,
				RequiresHITL:  s.RequiresHITL,
				RetryPolicy:   domain.RetryPolicy{MaxRetries: 2},
				Timeout:       5 * time.Minute,
			})
		}

		select {
		case out <- agents.HandlerEvent{
			Kind:              agents.EventContextWrite,
			ContextWriteKey:   "plan",
			ContextWriteValue: plan,
			Description:       "supervisor plan",
		}:
		case <-ctx.Done():
			return
		}

		select {
		case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
			Role:          domain.RoleSupervisor,
			Metrics:       metrics,
			ContextWrites: map[string]any{"plan": plan},
		}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// parseDecision extracts the JSON object from the model's response, tolerant
// of surrounding prose or a fenced code block.
func parseDecision(raw string) (planDecision, error) {
	obj := agents.ExtractJSON(raw)
	if obj == "" {
		return planDecision{}, fmt.Errorf("supervisor: no JSON object in response")
	}
	var d planDecision
	if err := json.Unmarshal([]byte(obj), &d); err != nil {
		return planDecision{}, fmt.Errorf("supervisor: decode decision: %w", err)
	}
	if d.Decision == "" {
		return planDecision{}, fmt.Errorf("supervisor: missing decision field")
	}
	return d, nil
}
