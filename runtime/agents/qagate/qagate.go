// Package qagate implements the QA Gate agent handler (spec.md §4.4): it runs
// the project's test suite via the run_tests tool and reports a pass/fail
// verdict with any failure output, without involving the LLM — a pure
// tool-dispatch handler, unlike its LLM-backed siblings.
package qagate

import (
	"context"
	"strings"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/domain"
)

// Handler implements agents.Handler for the qa_gate role.
type Handler struct {
	// Command overrides the default test command; empty means the run_tests
	// tool's own default ("go test ./...") is used.
	Command string
}

// New constructs a QA Gate handler.
func New(command string) *Handler {
	return &Handler{Command: command}
}

// Role implements agents.Handler.
func (h *Handler) Role() domain.AgentRole { return domain.RoleQAGate }

// Execute implements agents.Handler.
func (h *Handler) Execute(ctx context.Context, in agents.StageInput) (<-chan agents.HandlerEvent, error) {
	out := make(chan agents.HandlerEvent, 4)
	go func() {
		defer close(out)

		params := map[string]any{}
		if h.Command != "" {
			params["command"] = h.Command
		}
		reply := make(chan agents.ToolCallResult, 1)
		select {
		case out <- agents.HandlerEvent{
			Kind:          agents.EventToolCallRequest,
			ToolCall:      domain.ToolCall{Name: "run_tests", Params: params},
			ToolCallReply: reply,
		}:
		case <-ctx.Done():
			return
		}

		var res agents.ToolCallResult
		select {
		case res = <-reply:
		case <-ctx.Done():
			return
		}

		passed := res.Success
		var failures []string
		if !passed {
			msg := res.Error
			if msg == "" {
				msg = "test run failed"
			}
			failures = append(failures, msg)
		}
		if out2, ok := res.Output.(string); ok && out2 != "" {
			for _, line := range strings.Split(out2, "\n") {
				if strings.Contains(strings.ToUpper(line), "FAIL") {
					failures = append(failures, line)
				}
			}
		}
		if len(failures) > 0 {
			passed = false
		}

		select {
		case out <- agents.HandlerEvent{
			Kind:              agents.EventContextWrite,
			ContextWriteKey:   "qa_result",
			ContextWriteValue: map[string]any{"passed": passed, "failures": failures},
			Description:       "qa gate verdict",
		}:
		case <-ctx.Done():
			return
		}

		select {
		case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
			Role:     domain.RoleQAGate,
			Passed:   &passed,
			Failures: failures,
			NeedsRefine: !passed,
		}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
