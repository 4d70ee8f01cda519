package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/codeforge/assistant/runtime/domain"
)

type executeRequest struct {
	SessionID     string        `json:"session_id"`
	Message       string        `json:"message"`
	WorkspaceRoot string        `json:"workspace_root,omitempty"`
	History       []historyTurn `json:"conversation_history,omitempty"`
	Flags         *domain.Flags `json:"flags,omitempty"`
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleExecuteWorkflow starts a workflow and streams its event sequence
// back to the caller until the workflow reaches a terminal state or pauses
// on HITL (spec.md §6). Framing is Server-Sent Events by default; a client
// requesting "application/x-ndjson" (or Accept: application/x-ndjson) gets
// line-delimited JSON instead, bit-equivalent per spec.md §6.
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}

	sessionID := domain.SessionID(req.SessionID)
	workflowID := domain.WorkflowID(uuid.NewString())
	workspaceRoot := req.WorkspaceRoot
	if workspaceRoot == "" {
		workspaceRoot = s.Config.DefaultWorkspace
	}

	flags := domain.Flags{
		EnableDynamicHITL: s.Config.Feature(configFeatureDynamicHITL),
		EnablePauseButton: s.Config.Feature(configFeaturePauseButton),
	}
	if req.Flags != nil {
		flags = *req.Flags
	}

	history := make([]domain.ConversationTurn, 0, len(req.History))
	for _, h := range req.History {
		history = append(history, domain.ConversationTurn{Role: h.Role, Content: h.Content, At: domain.Now()})
	}

	domainReq := domain.Request{
		WorkflowID:          workflowID,
		SessionID:           sessionID,
		UserMessage:         req.Message,
		WorkspaceRoot:       workspaceRoot,
		ConversationHistory: history,
		Flags:               flags,
	}

	if s.Conversation != nil {
		_ = s.Conversation.AppendMessage(r.Context(), sessionID, domain.ConversationTurn{
			Role: "user", Content: req.Message, At: domain.Now(),
		})
	}

	sub := s.Bus.Subscribe(sessionID)
	defer sub.Close()

	if _, err := s.Orchestrator.Start(r.Context(), domainReq); err != nil {
		writeError(w, http.StatusInternalServerError, "cannot start workflow: "+err.Error())
		return
	}

	streamEvents(w, r, sub, workflowID)
}

// ndjsonRequested reports whether the client asked for newline-delimited
// JSON chunks instead of the default SSE framing (spec.md §6).
func ndjsonRequested(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/x-ndjson") || r.URL.Query().Get("framing") == "chunked"
}

func streamEvents(w http.ResponseWriter, r *http.Request, sub busSubscription, workflowID domain.WorkflowID) {
	ndjson := ndjsonRequested(r)
	if ndjson {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	}
	w.Header().Set("X-Workflow-Id", string(workflowID))
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if ndjson {
				_, _ = w.Write(raw)
				_, _ = w.Write([]byte("\n"))
			} else {
				_, _ = w.Write([]byte("data: "))
				_, _ = w.Write(raw)
				_, _ = w.Write([]byte("\n\n"))
			}
			if canFlush {
				flusher.Flush()
			}
			if terminalEvent(ev.Type()) {
				return
			}
		}
	}
}

func terminalEvent(t domain.EventType) bool {
	switch t {
	case domain.EventWorkflowCompleted, domain.EventWorkflowFailed, domain.EventWorkflowCancelled,
		domain.EventHITLRequested:
		return true
	default:
		return false
	}
}

func (s *Server) handlePauseWorkflow(w http.ResponseWriter, r *http.Request) {
	if !s.Config.Feature(configFeaturePauseButton) {
		writeError(w, http.StatusBadRequest, "pause_button feature is disabled")
		return
	}
	workflowID := domain.WorkflowID(chi.URLParam(r, "workflow_id"))
	if err := s.Orchestrator.Pause(r.Context(), workflowID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pausing"})
}

type resumeRequest struct {
	Message string `json:"message,omitempty"`
}

func (s *Server) handleResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := domain.WorkflowID(chi.URLParam(r, "workflow_id"))
	var req resumeRequest
	_ = decodeJSON(r, &req) // body is optional

	if err := s.Orchestrator.Resume(r.Context(), workflowID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resumed"})
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	workflowID := domain.WorkflowID(chi.URLParam(r, "workflow_id"))

	if state, ok := s.Orchestrator.Status(workflowID); ok {
		writeJSON(w, http.StatusOK, state)
		return
	}
	if s.Checkpoints != nil {
		if state, ok, err := s.Checkpoints.Load(r.Context(), workflowID); err == nil && ok {
			writeJSON(w, http.StatusOK, state)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown workflow: "+string(workflowID))
}

// busSubscription is the narrow slice of *bus.Subscription handlers in this
// package use, letting this file avoid importing runtime/bus's concrete
// Subscription type signature inline (kept for readability only — both
// handleExecuteWorkflow and streamEvents operate on the same subscription).
type busSubscription = interface {
	Events() <-chan domain.Event
	Close()
}

const (
	configFeatureDynamicHITL = "dynamic_hitl"
	configFeaturePauseButton = "pause_button"
)
