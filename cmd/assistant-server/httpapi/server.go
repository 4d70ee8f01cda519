// Package httpapi implements the External Interfaces (§6) HTTP surface: a
// go-chi/chi/v5 router exposing workflow execution/control, HITL response,
// session, tool, and workspace endpoints over the C1-C9 components. Routing
// itself has no direct precedent in the example pack (no example repo
// imports chi's router, only its middleware conventions, per DESIGN.md); the
// handler bodies underneath are plain adapters onto already-grounded
// packages (runtime/orchestrator, runtime/broker, runtime/store, ...).
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/codeforge/assistant/internal/config"
	"github.com/codeforge/assistant/runtime/broker"
	"github.com/codeforge/assistant/runtime/bus"
	"github.com/codeforge/assistant/runtime/orchestrator"
	"github.com/codeforge/assistant/runtime/store"
	"github.com/codeforge/assistant/runtime/telemetry"
	"github.com/codeforge/assistant/runtime/tools"
	"github.com/codeforge/assistant/runtime/workspace"
)

// Server bundles every collaborator a handler needs. It holds no business
// logic of its own beyond request decoding/response encoding and event
// streaming framing.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Broker       *broker.Broker
	Bus          *bus.Bus
	Conversation store.ConversationStore
	Checkpoints  store.WorkflowCheckpoint
	Tools        *tools.Registry
	Workspace    *workspace.Manager
	Config       *config.Config
	Telemetry    telemetry.Set
}

// NewRouter builds the chi.Router serving every route in spec.md §6.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.logRequests)

	r.Route("/workflow", func(r chi.Router) {
		r.Post("/execute", s.handleExecuteWorkflow)
		r.Post("/pause/{workflow_id}", s.handlePauseWorkflow)
		r.Post("/resume/{workflow_id}", s.handleResumeWorkflow)
		r.Get("/status/{workflow_id}", s.handleWorkflowStatus)
	})

	r.Route("/hitl", func(r chi.Router) {
		r.Get("/pending", s.handleHITLPending)
		r.Post("/respond/{request_id}", s.handleHITLRespond)
		r.Get("/ws", s.handleHITLWebSocket)
		r.Get("/ws/{workflow_id}", s.handleHITLWebSocket)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Get("/{session_id}", s.handleGetSession)
		r.Delete("/{session_id}", s.handleDeleteSession)
	})

	r.Post("/tools/execute", s.handleToolExecute)

	r.Route("/workspace", func(r chi.Router) {
		r.Get("/files", s.handleWorkspaceFiles)
		r.Get("/read", s.handleWorkspaceRead)
		r.Post("/write", s.handleWorkspaceWrite)
		r.Post("/set", s.handleWorkspaceSet)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Telemetry.Logger.Info(r.Context(), "http request",
			"method", r.Method, "path", r.URL.Path, "elapsed_ms", time.Since(start).Milliseconds())
	})
}
