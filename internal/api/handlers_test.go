package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seriva/flowdeck/internal/engine"
	"github.com/seriva/flowdeck/internal/plugins"
	"github.com/seriva/flowdeck/internal/scheduler"
	"github.com/seriva/flowdeck/internal/store"
	"github.com/seriva/flowdeck/internal/validation"
	"github.com/seriva/flowdeck/pkg/schema"
)

type testEnv struct {
	store   store.Store
	handler http.Handler
	plugin  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// Fake plugin backend answering every action call.
	plugin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(plugin.Close)

	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	catalog := &plugins.Catalog{Plugins: []plugins.Plugin{
		{Name: "echo", DisplayName: "Echo", Icon: "bolt", Actions: []plugins.Action{
			{ID: "ping", Name: "Ping", Endpoint: "/ping", Method: "POST"},
		}},
	}}

	validator, err := validation.NewWorkflowValidator(catalog)
	require.NoError(t, err)

	executor, err := engine.NewExecutor(engine.Config{
		Store:   st,
		Catalog: catalog,
		Invoker: engine.NewInvoker(engine.InvokerConfig{BaseURL: plugin.URL}),
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := scheduler.NewScheduler(engine.NewScheduledRunner(st, executor), logger)

	srv := NewServer(Deps{
		Store:     st,
		Validator: validator,
		Executor:  executor,
		Scheduler: sched,
		Catalog:   catalog,
		Logger:    logger,
	})

	return &testEnv{store: st, handler: srv.Handler(), plugin: plugin}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func manualWorkflow() map[string]any {
	return map[string]any{
		"name": "api test",
		"nodes": []map[string]any{
			{"id": "start", "type": "trigger", "subtype": "manual"},
			{"id": "send", "type": "action", "subtype": "plugin",
				"data": map[string]any{"plugin": "echo", "action": "ping"}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "start", "target": "send"},
		},
	}
}

func webhookWorkflow(enabled bool) map[string]any {
	return map[string]any{
		"name":    "hooked",
		"enabled": enabled,
		"nodes": []map[string]any{
			{"id": "hook-node", "type": "trigger", "subtype": "webhook"},
			{"id": "send", "type": "action", "subtype": "plugin",
				"data": map[string]any{"plugin": "echo", "action": "ping"}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "hook-node", "target": "send"},
		},
	}
}

// --- CRUD ---

func TestAPI_CreateAndGetWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", manualWorkflow())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeInto[schema.Workflow](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "api test", created.Name)

	rec = env.do(t, http.MethodGet, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeInto[[]schema.Workflow](t, rec)
	assert.Len(t, list, 1)
}

func TestAPI_CreateInvalidWorkflowRejected(t *testing.T) {
	env := newTestEnv(t)

	wf := manualWorkflow()
	wf["edges"] = []map[string]any{
		{"id": "e1", "source": "start", "target": "send"},
		{"id": "back", "source": "send", "target": "start"}, // cycle
	}
	rec := env.do(t, http.MethodPost, "/workflows", wf)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeInto[map[string]any](t, rec)
	require.Contains(t, body, "validation")

	// Rejected workflows are never persisted.
	rec = env.do(t, http.MethodGet, "/workflows", nil)
	list := decodeInto[[]schema.Workflow](t, rec)
	assert.Empty(t, list)
}

func TestAPI_UpdateWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", manualWorkflow())
	created := decodeInto[schema.Workflow](t, rec)

	wf := manualWorkflow()
	wf["name"] = "renamed"
	rec = env.do(t, http.MethodPut, "/workflows/"+created.ID, wf)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeInto[schema.Workflow](t, rec)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, created.ID, updated.ID)
}

func TestAPI_DeleteWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", manualWorkflow())
	created := decodeInto[schema.Workflow](t, rec)

	rec = env.do(t, http.MethodDelete, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_GetMissingWorkflow404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/workflows/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ToggleWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", manualWorkflow())
	created := decodeInto[schema.Workflow](t, rec)
	require.False(t, created.Enabled)

	rec = env.do(t, http.MethodPost, "/workflows/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	toggled := decodeInto[schema.Workflow](t, rec)
	assert.True(t, toggled.Enabled)

	rec = env.do(t, http.MethodPost, "/workflows/"+created.ID+"/toggle", nil)
	toggled = decodeInto[schema.Workflow](t, rec)
	assert.False(t, toggled.Enabled)
}

// --- Runs ---

func TestAPI_ExecuteWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", manualWorkflow())
	created := decodeInto[schema.Workflow](t, rec)

	rec = env.do(t, http.MethodPost, "/workflows/"+created.ID+"/execute",
		map[string]any{"value": "go"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	exec := decodeInto[store.Execution](t, rec)
	assert.Equal(t, schema.TriggerManual, exec.TriggerType)

	require.Eventually(t, func() bool {
		got, err := env.store.GetExecution(context.Background(), exec.ID)
		return err == nil && got.Status == schema.StatusCompleted
	}, 3*time.Second, 20*time.Millisecond)

	// Execution detail includes ordered logs and per-node outputs.
	rec = env.do(t, http.MethodGet, "/executions/"+exec.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeInto[store.Execution](t, rec)
	assert.NotEmpty(t, detail.Logs)
	assert.Contains(t, detail.Outputs, "send")

	rec = env.do(t, http.MethodGet, "/executions?workflow_id="+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeInto[[]store.Execution](t, rec)
	assert.Len(t, list, 1)
}

func TestAPI_ExecuteMissingWorkflow404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/workflows/ghost/execute", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ExecuteMalformedPayloadRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", manualWorkflow())
	created := decodeInto[schema.Workflow](t, rec)

	req := httptest.NewRequest(http.MethodPost, "/workflows/"+created.ID+"/execute",
		strings.NewReader(`{"value": `))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// No execution record is created for a rejected payload.
	list := env.do(t, http.MethodGet, "/executions", nil)
	assert.Empty(t, decodeInto[[]store.Execution](t, list))
}

// --- Webhook ---

func TestAPI_WebhookTriggersEnabledWorkflows(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", webhookWorkflow(true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/workflow-engine/webhook/hook-node",
		map[string]any{"payload": "data"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeInto[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["triggered"])
}

func TestAPI_WebhookIgnoresDisabledWorkflows(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", webhookWorkflow(false))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/workflow-engine/webhook/hook-node", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_WebhookUnknownNode404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/workflow-engine/webhook/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_WebhookMalformedPayloadRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", webhookWorkflow(true))
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/workflow-engine/webhook/hook-node",
		strings.NewReader(`not json`))
	res := httptest.NewRecorder()
	env.handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

// --- Catalog, schedules, health ---

func TestAPI_AvailablePlugins(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/available-plugins", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeInto[[]plugins.Plugin](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "echo", list[0].Name)
	assert.Equal(t, "Echo", list[0].DisplayName)
	require.Len(t, list[0].Actions, 1)
	assert.Equal(t, "/ping", list[0].Actions[0].Endpoint)
}

func TestAPI_ScheduledListsRegisteredWorkflows(t *testing.T) {
	env := newTestEnv(t)

	wf := manualWorkflow()
	wf["name"] = "nightly"
	wf["enabled"] = true
	wf["schedule"] = "0 2 * * *"
	wf["nodes"].([]map[string]any)[0]["subtype"] = "schedule"

	rec := env.do(t, http.MethodPost, "/workflows", wf)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/scheduled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeInto[[]scheduler.Entry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "nightly", entries[0].Name)
	assert.Equal(t, "0 2 * * *", entries[0].Schedule)
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeInto[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}
