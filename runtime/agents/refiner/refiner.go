// Package refiner implements the Refiner agent handler (spec.md §4.4): given
// the prior artifacts plus the issues/findings the Reviewer, QA Gate, and
// Security Gate raised against them, it produces updated artifacts that
// preserve RelativePath exactly so the Workspace Manager applies them as
// "modified" against the same files (spec.md §4.2).
package refiner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/llm"
)

const systemPrompt = `You are fixing up code based on review and gate feedback. You
are given the current content of each file and a list of issues/findings to
address. Produce updated file contents that fix every issue while preserving
the exact same file paths. Respond with a single JSON object, no surrounding
prose:

{"artifacts":[{"path":"relative/file/path.go","language":"go","content":"<full updated file content>"}]}`

// Handler implements agents.Handler for the refiner role.
type Handler struct {
	deps agents.LLMDeps
}

// New constructs a Refiner handler.
func New(deps agents.LLMDeps) *Handler {
	return &Handler{deps: deps}
}

// Role implements agents.Handler.
func (h *Handler) Role() domain.AgentRole { return domain.RoleRefiner }

type refineDoc struct {
	Artifacts []refineArtifactIn `json:"artifacts"`
}

type refineArtifactIn struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// Execute implements agents.Handler.
func (h *Handler) Execute(ctx context.Context, in agents.StageInput) (<-chan agents.HandlerEvent, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Original request: " + in.Request.UserMessage})
	for _, a := range in.PriorArtifacts {
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "Current content of " + a.RelativePath + ":\n" + a.Content,
		})
	}
	if review, ok := in.Context.Get("review", string(domain.RoleRefiner)); ok {
		if b, err := json.Marshal(review); err == nil {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Reviewer findings: " + string(b)})
		}
	}
	if qa, ok := in.Context.Get("qa_result", string(domain.RoleRefiner)); ok {
		if b, err := json.Marshal(qa); err == nil {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "QA gate result: " + string(b)})
		}
	}
	if sec, ok := in.Context.Get("security_findings", string(domain.RoleRefiner)); ok {
		if b, err := json.Marshal(sec); err == nil {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Security gate findings: " + string(b)})
		}
	}

	out := make(chan agents.HandlerEvent, 8)
	go func() {
		defer close(out)
		text, metrics, err := agents.CollectText(ctx, out, h.deps.Client, messages, llm.Options{
			Model:         h.deps.Model,
			MaxTokens:     8192,
			StripThinking: true,
		})
		if err != nil {
			return
		}

		var doc refineDoc
		if obj := agents.ExtractJSON(text); obj != "" {
			_ = json.Unmarshal([]byte(obj), &doc)
		}

		byPath := make(map[string]domain.Artifact, len(in.PriorArtifacts))
		for _, a := range in.PriorArtifacts {
			byPath[a.RelativePath] = a
		}

		artifacts := make([]domain.Artifact, 0, len(doc.Artifacts))
		for _, a := range doc.Artifacts {
			prior, existed := byPath[a.Path]
			action := domain.ActionModified
			if !existed {
				action = domain.ActionCreated
			}
			lang := a.Language
			if lang == "" {
				lang = prior.Language
			}
			sum := sha256.Sum256([]byte(a.Content))
			artifact := domain.Artifact{
				RelativePath: a.Path,
				Language:     lang,
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
			Role:      domain.RoleRefiner,
			Artifacts: artifacts,
			Metrics:   metrics,
		}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
