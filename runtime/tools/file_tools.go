package tools

import (
	"context"
	"fmt"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/workspace"
)

// workspaceTools bundles the four filesystem tools backed by C2's
// workspace.Manager (spec.md §4.1 enumerated tools, §4.2).
type workspaceTools struct {
	ws        *workspace.Manager
	sessionID domain.SessionID
}

// NewFileTools builds the read_file/write_file/search_files/list_directory
// tools bound to the single session's workspace named by sessionID.
// cmd/assistant-server registers one instance at startup.
func NewFileTools(ws *workspace.Manager, sessionID domain.SessionID) []Tool {
	w := workspaceTools{ws: ws, sessionID: sessionID}
	return []Tool{
		readFileTool{w},
		writeFileTool{w},
		searchFilesTool{w},
		listDirectoryTool{w},
	}
}

const pathSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {"path": {"type": "string"}},
  "required": ["path"],
  "additionalProperties": true
}`

type readFileTool struct{ workspaceTools }

func (readFileTool) Name() string               { return "read_file" }
func (readFileTool) Category() Category         { return CategoryFile }
func (readFileTool) NetworkType() NetworkType   { return NetworkLocal }
func (readFileTool) ParametersSchema() []byte   { return []byte(pathSchema) }

func (t readFileTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	return runWithTimeout(ctx, func() (Result, error) {
		path, _ := params["path"].(string)
		data, err := t.ws.ReadFile(t.sessionID, path)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, err
		}
		return Result{Success: true, Output: string(data)}, nil
	})
}

type writeFileTool struct{ workspaceTools }

func (writeFileTool) Name() string             { return "write_file" }
func (writeFileTool) Category() Category       { return CategoryFile }
func (writeFileTool) NetworkType() NetworkType { return NetworkLocal }
func (writeFileTool) ParametersSchema() []byte {
	return []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "path": {"type": "string"},
    "content": {"type": "string"}
  },
  "required": ["path", "content"],
  "additionalProperties": true
}`)
}

func (t writeFileTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	return runWithTimeout(ctx, func() (Result, error) {
		path, _ := params["path"].(string)
		content, _ := params["content"].(string)
		applied, err := t.ws.ApplyArtifact(t.sessionID, domain.Artifact{
			RelativePath: path,
			Content:      content,
			Action:       domain.ActionCreated,
		})
		if err != nil {
			return Result{Success: false, Error: err.Error()}, err
		}
		return Result{Success: true, Output: applied}, nil
	})
}

type searchFilesTool struct{ workspaceTools }

func (searchFilesTool) Name() string             { return "search_files" }
func (searchFilesTool) Category() Category       { return CategoryFile }
func (searchFilesTool) NetworkType() NetworkType { return NetworkLocal }
func (searchFilesTool) ParametersSchema() []byte {
	return []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "path": {"type": "string", "default": "."},
    "pattern": {"type": "string"}
  },
  "required": ["pattern"],
  "additionalProperties": true
}`)
}

func (t searchFilesTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	return runWithTimeout(ctx, func() (Result, error) {
		path, _ := params["path"].(string)
		pattern, _ := params["pattern"].(string)
		entries, err := t.ws.ListFiles(t.sessionID, path, 64)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, err
		}
		var matched []string
		for _, e := range entries {
			if e.IsDir {
				continue
			}
			if ok, _ := matchGlob(pattern, e.RelativePath); ok {
				matched = append(matched, e.RelativePath)
			}
		}
		return Result{Success: true, Output: matched}, nil
	})
}

type listDirectoryTool struct{ workspaceTools }

func (listDirectoryTool) Name() string             { return "list_directory" }
func (listDirectoryTool) Category() Category       { return CategoryFile }
func (listDirectoryTool) NetworkType() NetworkType { return NetworkLocal }
func (listDirectoryTool) ParametersSchema() []byte {
	return []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "path": {"type": "string", "default": "."},
    "depth": {"type": "integer", "minimum": 0, "default": 1}
  },
  "additionalProperties": true
}`)
}

func (t listDirectoryTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	return runWithTimeout(ctx, func() (Result, error) {
		path, _ := params["path"].(string)
		depth := 1
		if d, ok := params["depth"].(float64); ok {
			depth = int(d)
		}
		entries, err := t.ws.ListFiles(t.sessionID, path, depth)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, err
		}
		return Result{Success: true, Output: entries}, nil
	})
}

// matchGlob wraps globMatch (filepath.Match against the base name),
// returning a consistent error string.
func matchGlob(pattern, name string) (bool, error) {
	ok, err := globMatch(pattern, name)
	if err != nil {
		return false, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	return ok, nil
}
