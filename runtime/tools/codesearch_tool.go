package tools

import (
	"context"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/tools/codesearch"
)

// codeSearchTool exposes the codesearch.Index as the code_search tool
// (spec.md §4.1 enumerated tools). network_type=local: chromem-go runs
// in-process, so this is available under NETWORK_MODE=offline.
type codeSearchTool struct {
	idx       *codesearch.Index
	sessionID domain.SessionID
}

// NewCodeSearchTool builds the code_search tool bound to one session's
// index.
func NewCodeSearchTool(idx *codesearch.Index, sessionID domain.SessionID) Tool {
	return codeSearchTool{idx: idx, sessionID: sessionID}
}

func (codeSearchTool) Name() string             { return "code_search" }
func (codeSearchTool) Category() Category       { return CategorySearch }
func (codeSearchTool) NetworkType() NetworkType { return NetworkLocal }
func (codeSearchTool) ParametersSchema() []byte {
	return []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "query": {"type": "string"},
    "top_k": {"type": "integer", "default": 5}
  },
  "required": ["query"],
  "additionalProperties": true
}`)
}

func (t codeSearchTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	query, _ := params["query"].(string)
	topK := 5
	if v, ok := params["top_k"].(float64); ok {
		topK = int(v)
	}
	matches, err := t.idx.Search(ctx, string(t.sessionID), query, topK)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}
	return Result{Success: true, Output: matches}, nil
}
