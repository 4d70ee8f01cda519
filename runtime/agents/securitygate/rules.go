package securitygate

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule is one pattern-based security check, loaded from a YAML rule set
// (SPEC_FULL.md §4.4's security-gate design note).
type Rule struct {
	ID       string `yaml:"id"`
	Pattern  string `yaml:"pattern"`
	Severity string `yaml:"severity"`
	Message  string `yaml:"message"`

	compiled *regexp.Regexp
}

type ruleSetDoc struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRuleSetYAML is the built-in rule set used when no external rule
// file is configured, covering the checks spec.md §4.4 names explicitly:
// hardcoded secrets, unsanitized exec.Command, string-concatenated SQL, and
// world-writable file permissions.
const DefaultRuleSetYAML = `
rules:
  - id: hardcoded-secret
    pattern: '(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["''][A-Za-z0-9/+=_-]{8,}["'']'
    severity: high
    message: possible hardcoded credential
  - id: unsanitized-exec
    pattern: 'exec\.Command\([^)]*\+[^)]*\)'
    severity: critical
    message: exec.Command built from concatenated, possibly unsanitized input
  - id: sql-string-concat
    pattern: '(?i)(SELECT|INSERT|UPDATE|DELETE)[^"'']*["''][^"'']*\+'
    severity: high
    message: SQL statement built via string concatenation, risk of injection
  - id: world-writable-perm
    pattern: 'os\.(WriteFile|OpenFile|Chmod|MkdirAll)\([^)]*0o?[0-7][0-7][2367]'
    severity: medium
    message: file or directory created with world-writable permissions
`

// LoadRuleSet parses a YAML rule set. yamlSrc empty uses DefaultRuleSetYAML.
func LoadRuleSet(yamlSrc string) ([]Rule, error) {
	if yamlSrc == "" {
		yamlSrc = DefaultRuleSetYAML
	}
	var doc ruleSetDoc
	if err := yaml.Unmarshal([]byte(yamlSrc), &doc); err != nil {
		return nil, fmt.Errorf("securitygate: parse rule set: %w", err)
	}
	for i, r := range doc.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("securitygate: rule %s: compile pattern: %w", r.ID, err)
		}
		doc.Rules[i].compiled = re
	}
	return doc.Rules, nil
}
