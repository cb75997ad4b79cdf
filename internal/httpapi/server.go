// Package httpapi exposes the process's HTTP surface: chat streaming over
// SSE, attachment upload/list/delete, generated-asset retrieval, model
// enumeration, and session metadata (spec.md §6).
package httpapi

import (
	"net/http"

	"lanecore/internal/config"
	"lanecore/internal/events"
	"lanecore/internal/llm"
	"lanecore/internal/objectstore"
	"lanecore/internal/session"
)

// Engine runs one turn through the planning graph for a session and
// publishes every event onto bus, closing it when the run ends. Implemented
// by internal/engine.TurnRunner; kept as an interface here so this layer
// doesn't need to know how the graph is wired, the same way workers.Worker
// keeps lane dispatch decoupled from task-kind-specific logic.
type Engine interface {
	RunTurn(sessionID, provider, model, text string, bus *events.Bus)
}

// Server holds every collaborator a route needs: session state, object
// storage for uploads/generated assets, the LLM factory for model
// enumeration, and the turn engine that drives the planning graph.
type Server struct {
	Sessions *session.Store
	Objects  objectstore.ObjectStore
	Factory  *llm.Factory
	Engine   Engine
	Config   config.Config

	mux *http.ServeMux
}

// NewServer wires the routes spec.md §6 names and nothing else: this layer
// intentionally drops the teacher's auth/projects/teams/warpp/MCP-passthrough
// surface, which has no SPEC_FULL.md home.
func NewServer(sessions *session.Store, objects objectstore.ObjectStore, factory *llm.Factory, engine Engine, cfg config.Config) *Server {
	s := &Server{Sessions: sessions, Objects: objects, Factory: factory, Engine: engine, Config: cfg}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler. CORS is wide open, matching the
// teacher's own `Access-Control-Allow-Origin: *` on its chat routes: this is
// a local-first assistant surface, not a multi-tenant public API.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)

	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/uploads/{sid}", s.handleListUploads)
	s.mux.HandleFunc("DELETE /api/uploads/{sid}/{aid}", s.handleDeleteUpload)

	s.mux.HandleFunc("GET /api/assets/{sid}/{filename}", s.handleGetAsset)

	s.mux.HandleFunc("GET /api/models", s.handleModels)

	s.mux.HandleFunc("GET /api/session/meta", s.handleSessionMeta)
	s.mux.HandleFunc("POST /api/session/clear", s.handleSessionClear)
}
