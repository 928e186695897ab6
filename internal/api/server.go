package api

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/seriva/flowdeck/internal/engine"
	"github.com/seriva/flowdeck/internal/plugins"
	"github.com/seriva/flowdeck/internal/scheduler"
	"github.com/seriva/flowdeck/internal/store"
	"github.com/seriva/flowdeck/internal/validation"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Store     store.Store
	Validator *validation.WorkflowValidator
	Executor  *engine.Executor
	Scheduler *scheduler.Scheduler
	Catalog   *plugins.Catalog
	Logger    *slog.Logger
}

// Server serves the REST API consumed by the dashboard.
type Server struct {
	deps Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Workflow CRUD.
	mux.HandleFunc("GET /workflows", s.handleListWorkflows)
	mux.HandleFunc("POST /workflows", s.handleCreateWorkflow)
	mux.HandleFunc("GET /workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("PUT /workflows/{id}", s.handleUpdateWorkflow)
	mux.HandleFunc("DELETE /workflows/{id}", s.handleDeleteWorkflow)

	// Runs.
	mux.HandleFunc("POST /workflows/{id}/execute", s.handleExecuteWorkflow)
	mux.HandleFunc("POST /workflows/{id}/toggle", s.handleToggleWorkflow)
	mux.HandleFunc("GET /executions", s.handleListExecutions)
	mux.HandleFunc("GET /executions/{id}", s.handleGetExecution)

	// Triggers and catalog.
	mux.HandleFunc("POST /workflow-engine/webhook/{node_id}", s.handleWebhook)
	mux.HandleFunc("GET /available-plugins", s.handleAvailablePlugins)
	mux.HandleFunc("GET /scheduled", s.handleScheduled)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}
