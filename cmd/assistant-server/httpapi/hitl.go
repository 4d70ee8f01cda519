package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codeforge/assistant/runtime/broker/wsbridge"
	"github.com/codeforge/assistant/runtime/domain"
)

func (s *Server) handleHITLPending(w http.ResponseWriter, r *http.Request) {
	workflowID := domain.WorkflowID(r.URL.Query().Get("workflow_id"))
	writeJSON(w, http.StatusOK, s.Broker.ListPending(workflowID))
}

func (s *Server) handleHITLRespond(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")
	var resp domain.HITLResponse
	if err := decodeJSON(r, &resp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp.RequestID = requestID

	if err := s.Broker.Resolve(requestID, resp); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// handleHITLWebSocket upgrades to a gorilla/websocket connection and pushes
// hitl_* events as they are published, optionally scoped to one workflow
// (spec.md §6 "/hitl/ws or /hitl/ws/{workflow_id}").
func (s *Server) handleHITLWebSocket(w http.ResponseWriter, r *http.Request) {
	workflowID := domain.WorkflowID(chi.URLParam(r, "workflow_id"))
	wsbridge.Serve(w, r, s.Broker, workflowID, s.Telemetry.Logger)
}
