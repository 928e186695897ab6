package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/seriva/flowdeck/internal/store"
	"github.com/seriva/flowdeck/pkg/schema"
)

const defaultExecutionLimit = 50

// --- Workflow CRUD ---

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.deps.Store.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if workflows == nil {
		workflows = []*schema.Workflow{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf schema.Workflow
	if err := decodeBody(r, &wf); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if result := s.deps.Validator.Validate(&wf); !result.Valid() {
		writeValidationFailure(w, result)
		return
	}

	if err := s.deps.Store.CreateWorkflow(r.Context(), &wf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.deps.Scheduler.Sync(&wf); err != nil {
		s.deps.Logger.Error("failed to sync schedule", "workflow_id", wf.ID, "error", err)
	}

	s.deps.Logger.Info("workflow created", "workflow_id", wf.ID, "name", wf.Name)
	writeJSON(w, http.StatusCreated, &wf)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.deps.Store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var wf schema.Workflow
	if err := decodeBody(r, &wf); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	wf.ID = id

	if result := s.deps.Validator.Validate(&wf); !result.Valid() {
		writeValidationFailure(w, result)
		return
	}

	if err := s.deps.Store.UpdateWorkflow(r.Context(), &wf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	updated, err := s.deps.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.deps.Scheduler.Sync(updated); err != nil {
		s.deps.Logger.Error("failed to sync schedule", "workflow_id", id, "error", err)
	}

	s.deps.Logger.Info("workflow updated", "workflow_id", id)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Store.DeleteWorkflow(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.deps.Scheduler.Unregister(id)
	s.deps.Logger.Info("workflow deleted", "workflow_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Runs ---

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.deps.Store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	payload, err := decodeOptionalPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	exec, err := s.deps.Executor.Dispatch(r.Context(), wf, schema.TriggerManual, payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

func (s *Server) handleToggleWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	wf, err := s.deps.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	updated, err := s.deps.Store.ToggleWorkflow(r.Context(), id, !wf.Enabled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.deps.Scheduler.Sync(updated); err != nil {
		s.deps.Logger.Error("failed to sync schedule", "workflow_id", id, "error", err)
	}

	s.deps.Logger.Info("workflow toggled", "workflow_id", id, "enabled", updated.Enabled)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := store.ExecutionFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Limit:      queryInt(r, "limit", defaultExecutionLimit),
		Offset:     queryInt(r, "offset", 0),
	}
	executions, err := s.deps.Store.ListExecutions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if executions == nil {
		executions = []*store.Execution{}
	}
	writeJSON(w, http.StatusOK, executions)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.deps.Store.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// --- Triggers and catalog ---

// handleWebhook fans the request body out as the trigger payload of every
// enabled workflow owning the addressed webhook trigger node.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("node_id")
	payload, err := decodeOptionalPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	workflows, err := s.deps.Store.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var executionIDs []string
	for _, wf := range workflows {
		if !wf.Enabled || wf.WebhookNode(nodeID) == nil {
			continue
		}
		exec, err := s.deps.Executor.Dispatch(r.Context(), wf, schema.TriggerWebhook, payload)
		if err != nil {
			s.deps.Logger.Error("webhook dispatch failed",
				"workflow_id", wf.ID, "node_id", nodeID, "error", err)
			continue
		}
		executionIDs = append(executionIDs, exec.ID)
	}

	if len(executionIDs) == 0 {
		writeError(w, http.StatusNotFound, schema.NewErrorf(schema.ErrCodeNotFound,
			"no enabled workflow has webhook trigger node %q", nodeID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"triggered":  len(executionIDs),
		"executions": executionIDs,
	})
}

func (s *Server) handleAvailablePlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog.Plugins)
}

func (s *Server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scheduler.Entries())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeOptionalPayload reads an optional JSON object body that becomes the
// trigger payload. An empty body yields nil (the executor substitutes an
// empty map); a non-empty body that is not a JSON object is an error.
func decodeOptionalPayload(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "read request body").WithCause(err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "trigger payload must be a JSON object").WithCause(err)
	}
	return payload, nil
}
