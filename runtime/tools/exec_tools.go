package tools

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/codeforge/assistant/runtime/apperr"
)

// execTool runs a fixed command template against the session's workspace
// directory. Cancellation uses exec.CommandContext, so a timed-out or
// cancelled context kills the child process promptly (spec.md §4.1
// "the tool's process/subroutine is signaled to abort").
type execTool struct {
	name       string
	category   Category
	schema     string
	buildArgs  func(params map[string]any) []string
	program    func(params map[string]any) string
	workDir    string
}

func (t execTool) Name() string             { return t.name }
func (t execTool) Category() Category       { return t.category }
func (t execTool) NetworkType() NetworkType  { return NetworkLocal }
func (t execTool) ParametersSchema() []byte  { return []byte(t.schema) }

func (t execTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	program := t.program(params)
	args := t.buildArgs(params)

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = t.workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return Result{}, apperr.New(apperr.KindTransient, "timeout")
	}
	output := map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode(err),
	}
	if err != nil {
		return Result{Success: false, Output: output, Error: err.Error()}, nil
	}
	return Result{Success: true, Output: output}, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// NewExecutePythonTool runs `python3 -c <code>` within workDir, the pattern
// used by the `execute_python` tool in spec.md §4.1.
func NewExecutePythonTool(workDir string) Tool {
	return execTool{
		name:     "execute_python",
		category: CategoryCode,
		workDir:  workDir,
		schema: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {"code": {"type": "string"}},
  "required": ["code"],
  "additionalProperties": true
}`,
		program: func(map[string]any) string { return "python3" },
		buildArgs: func(params map[string]any) []string {
			code, _ := params["code"].(string)
			return []string{"-c", code}
		},
	}
}

// NewRunTestsTool runs `go test ./...` (or a configured command) within
// workDir for the QA Gate handler (spec.md §4.1, §4.4).
func NewRunTestsTool(workDir, command string) Tool {
	if command == "" {
		command = "go"
	}
	return execTool{
		name:     "run_tests",
		category: CategoryCode,
		workDir:  workDir,
		schema:   `{"$schema": "https://json-schema.org/draft/2020-12/schema", "type": "object", "additionalProperties": true}`,
		program:  func(map[string]any) string { return command },
		buildArgs: func(map[string]any) []string {
			if command == "go" {
				return []string{"test", "./..."}
			}
			return nil
		},
	}
}

// NewLintCodeTool runs `go vet ./...` (or a configured linter) within workDir
// for the Security/Reviewer handlers (spec.md §4.1).
func NewLintCodeTool(workDir, command string) Tool {
	if command == "" {
		command = "go"
	}
	return execTool{
		name:     "lint_code",
		category: CategoryCode,
		workDir:  workDir,
		schema:   `{"$schema": "https://json-schema.org/draft/2020-12/schema", "type": "object", "additionalProperties": true}`,
		program:  func(map[string]any) string { return command },
		buildArgs: func(map[string]any) []string {
			if command == "go" {
				return []string{"vet", "./..."}
			}
			return nil
		},
	}
}
