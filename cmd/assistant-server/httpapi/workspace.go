package httpapi

import (
	"net/http"
	"strconv"

	"github.com/codeforge/assistant/runtime/domain"
)

// handleWorkspaceFiles lists files under a session's workspace
// (spec.md §6 "GET /workspace/files?workspace_path="). session_id selects
// whose workspace; workspace_path (default "") and depth (default 1) bound
// the walk.
func (s *Server) handleWorkspaceFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := domain.SessionID(q.Get("session_id"))
	relPath := q.Get("workspace_path")
	depth := 1
	if v := q.Get("depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			depth = n
		}
	}
	entries, err := s.Workspace.ListFiles(sessionID, relPath, depth)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWorkspaceRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := domain.SessionID(q.Get("session_id"))
	relPath := q.Get("path")
	data, err := s.Workspace.ReadFile(sessionID, relPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": string(data)})
}

type workspaceWriteRequest struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	Language  string `json:"language,omitempty"`
}

func (s *Server) handleWorkspaceWrite(w http.ResponseWriter, r *http.Request) {
	var req workspaceWriteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	applied, err := s.Workspace.ApplyArtifact(domain.SessionID(req.SessionID), domain.Artifact{
		RelativePath: req.Path,
		Content:      req.Content,
		Language:     req.Language,
		Action:       domain.ActionModified,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

type workspaceSetRequest struct {
	SessionID string `json:"session_id"`
	Dir       string `json:"dir"`
}

// handleWorkspaceSet binds an existing directory as sessionID's workspace
// root (spec.md §6 "POST /workspace/set"), for clients attaching the
// assistant to a project that already exists on disk instead of letting
// GetOrCreateWorkspace derive a fresh slugified directory.
func (s *Server) handleWorkspaceSet(w http.ResponseWriter, r *http.Request) {
	var req workspaceSetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" || req.Dir == "" {
		writeError(w, http.StatusBadRequest, "session_id and dir are required")
		return
	}
	s.Workspace.Bind(domain.SessionID(req.SessionID), req.Dir)
	writeJSON(w, http.StatusOK, map[string]string{"root": s.Workspace.Root(domain.SessionID(req.SessionID))})
}
