// Package coder implements the Coder agent handler (spec.md §4.4): it
// produces file artifacts that implement the plan's steps. Before writing
// code it issues a list_directory tool_call_request so the model can see
// what already exists in the workspace, the synchronous tool-call rendezvous
// pattern documented on agents.HandlerEvent.ToolCallReply.
package coder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/llm"
)

const systemPrompt = `You are the coder for an autonomous coding assistant. Given
the user's request, the file-level plan steps, and a listing of the current
workspace, produce the file contents needed. Respond with a single JSON
object, no surrounding prose:

{"artifacts":[{"path":"relative/file/path.go","action":"create|modify|delete","language":"go","content":"<full file content, empty for delete>"}]}

Always write the FULL content of each created or modified file, never a diff
or a partial snippet.`

// Handler implements agents.Handler for the coder role.
type Handler struct {
	deps agents.LLMDeps
}

// New constructs a Coder handler.
func New(deps agents.LLMDeps) *Handler {
	return &Handler{deps: deps}
}

// Role implements agents.Handler.
func (h *Handler) Role() domain.AgentRole { return domain.RoleCoder }

type artifactDoc struct {
	Artifacts []artifactIn `json:"artifacts"`
}

type artifactIn struct {
	Path     string `json:"path"`
	Action   string `json:"action"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// Execute implements agents.Handler.
func (h *Handler) Execute(ctx context.Context, in agents.StageInput) (<-chan agents.HandlerEvent, error) {
	out := make(chan agents.HandlerEvent, 8)
	go func() {
		defer close(out)

		reply := make(chan agents.ToolCallResult, 1)
		select {
		case out <- agents.HandlerEvent{
			Kind:          agents.EventToolCallRequest,
			ToolCall:      domain.ToolCall{Name: "list_directory", Params: map[string]any{"path": ".", "depth": 3}},
			ToolCallReply: reply,
		}:
		case <-ctx.Done():
			return
		}

		var listing string
		select {
		case res := <-reply:
			if res.Success {
				if b, err := json.Marshal(res.Output); err == nil {
					listing = string(b)
				}
			}
		case <-ctx.Done():
			return
		}

		messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.Request.UserMessage})
		if steps, ok := in.Context.Get("plan_steps", string(domain.RoleCoder)); ok {
			if b, err := json.Marshal(steps); err == nil {
				messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "File-level plan steps: " + string(b)})
			}
		}
		if listing != "" {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Current workspace listing: " + listing})
		}

		text, metrics, err := agents.CollectText(ctx, out, h.deps.Client, messages, llm.Options{
			Model:         h.deps.Model,
			MaxTokens:     8192,
			StripThinking: true,
		})
		if err != nil {
			return
		}

		var doc artifactDoc
		if obj := agents.ExtractJSON(text); obj != "" {
			if uerr := json.Unmarshal([]byte(obj), &doc); uerr != nil {
				select {
				case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
					Role:    domain.RoleCoder,
					Metrics: metrics,
					Error:   &domain.HandlerError{Reason: fmt.Sprintf("coder: malformed artifact JSON: %v", uerr)},
				}}:
				case <-ctx.Done():
				}
				return
			}
		}

		artifacts := make([]domain.Artifact, 0, len(doc.Artifacts))
		for _, a := range doc.Artifacts {
			action := domain.ActionModified
			switch a.Action {
			case "create":
				action = domain.ActionCreated
			case "delete":
				action = domain.ActionDeleted
			}
			sum := sha256.Sum256([]byte(a.Content))
			artifact := domain.Artifact{
				RelativePath: a.Path,
				Language:     a.Language,
				Content:      a.Content,
				Action:       action,
				SizeBytes:    int64(len(a.Content)),
				Digest:       hex.EncodeToString(sum[:]),
			}
			artifacts = append(artifacts, artifact)
			select {
			case out <- agents.HandlerEvent{Kind: agents.EventArtifact, Artifact: artifact}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
			Role:      domain.RoleCoder,
			Artifacts: artifacts,
			Metrics:   metrics,
		}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
