package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codeforge/assistant/runtime/domain"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	ids, err := s.Conversation.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := domain.SessionID(chi.URLParam(r, "session_id"))
	rec, err := s.Conversation.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteSession closes a session's live event subscribers. The
// session's workspace binding and its durable ConversationStore record are
// both left in place
// (C9 is append-only by design, spec.md §4.9): deletion here means "stop
// serving this session," not "erase its history."
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := domain.SessionID(chi.URLParam(r, "session_id"))
	s.Bus.CloseSession(sessionID)
	w.WriteHeader(http.StatusNoContent)
}
