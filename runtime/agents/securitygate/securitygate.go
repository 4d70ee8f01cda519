// Package securitygate implements the Security Gate agent handler (spec.md
// §4.4): it scans candidate artifacts against a YAML-loaded rule set for
// hardcoded secrets, unsanitized exec.Command, SQL string concatenation, and
// world-writable file permissions, emitting SecurityFindings with
// severities. A pure pattern-matching handler; it never calls the LLM.
package securitygate

import (
	"bufio"
	"context"
	"strings"

	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/domain"
)

// Handler implements agents.Handler for the security_gate role.
type Handler struct {
	rules []Rule
}

// New constructs a Security Gate handler from a YAML rule set; pass "" for
// the built-in default rule set.
func New(yamlSrc string) (*Handler, error) {
	rules, err := LoadRuleSet(yamlSrc)
	if err != nil {
		return nil, err
	}
	return &Handler{rules: rules}, nil
}

// Role implements agents.Handler.
func (h *Handler) Role() domain.AgentRole { return domain.RoleSecurityGate }

// Execute implements agents.Handler.
func (h *Handler) Execute(ctx context.Context, in agents.StageInput) (<-chan agents.HandlerEvent, error) {
	out := make(chan agents.HandlerEvent, 4)
	go func() {
		defer close(out)

		var findings []domain.SecurityFinding
		for _, artifact := range in.PriorArtifacts {
			if artifact.Action == domain.ActionDeleted {
				continue
			}
			findings = append(findings, h.scan(artifact)...)
		}

		needsRefine := false
		for _, f := range findings {
			if f.Severity == "high" || f.Severity == "critical" {
				needsRefine = true
				break
			}
		}

		select {
		case out <- agents.HandlerEvent{
			Kind:              agents.EventContextWrite,
			ContextWriteKey:   "security_findings",
			ContextWriteValue: findings,
			Description:       "security gate findings",
		}:
		case <-ctx.Done():
			return
		}

		select {
		case out <- agents.HandlerEvent{Kind: agents.EventDone, Output: domain.AgentOutput{
			Role:        domain.RoleSecurityGate,
			Findings:    findings,
			NeedsRefine: needsRefine,
		}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (h *Handler) scan(artifact domain.Artifact) []domain.SecurityFinding {
	var findings []domain.SecurityFinding
	scanner := bufio.NewScanner(strings.NewReader(artifact.Content))
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		for _, r := range h.rules {
			if r.compiled == nil {
				continue
			}
			if r.compiled.MatchString(text) {
				findings = append(findings, domain.SecurityFinding{
					RuleID:   r.ID,
					Severity: r.Severity,
					File:     artifact.RelativePath,
					Line:     line,
					Message:  r.Message,
				})
			}
		}
	}
	return findings
}
