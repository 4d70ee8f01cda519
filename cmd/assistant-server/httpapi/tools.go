package httpapi

import (
	"net/http"
)

type toolExecuteRequest struct {
	ToolName  string         `json:"tool_name"`
	Params    map[string]any `json:"params"`
	SessionID string         `json:"session_id"`
}

// handleToolExecute invokes the Tool Registry directly (spec.md §6
// "POST /tools/execute ... invokes C1 directly"), bypassing the Workflow
// Engine entirely — useful for IDE-side tool probing outside a workflow run.
func (s *Server) handleToolExecute(w http.ResponseWriter, r *http.Request) {
	var req toolExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "tool_name is required")
		return
	}
	result, err := s.Tools.Execute(r.Context(), req.ToolName, req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
