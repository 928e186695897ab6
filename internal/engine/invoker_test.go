package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seriva/flowdeck/internal/plugins"
	"github.com/seriva/flowdeck/pkg/schema"
)

func testPluginAction(method string) (*plugins.Plugin, *plugins.Action) {
	return &plugins.Plugin{Name: "jira"},
		&plugins.Action{ID: "get-issues", Endpoint: "/api/issues", Method: method}
}

func TestInvoker_GETSendsQueryParams(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"issues": []any{"FD-1"}})
	}))
	defer srv.Close()

	inv := NewInvoker(InvokerConfig{BaseURL: srv.URL})
	plugin, action := testPluginAction("GET")

	out, err := inv.Invoke(context.Background(), plugin, action, map[string]any{
		"project": "FD",
		"limit":   float64(5),
	})
	require.NoError(t, err)

	assert.Equal(t, "/plugins/jira/api/issues", gotPath)
	assert.Contains(t, gotQuery, "project=FD")
	assert.Contains(t, gotQuery, "limit=5")

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"FD-1"}, m["issues"])
}

func TestInvoker_POSTSendsJSONBody(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"created": true})
	}))
	defer srv.Close()

	inv := NewInvoker(InvokerConfig{BaseURL: srv.URL})
	plugin, action := testPluginAction("POST")

	_, err := inv.Invoke(context.Background(), plugin, action, map[string]any{
		"summary": "new issue",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "new issue", gotBody["summary"])
}

func TestInvoker_NonJSONResponsePassedAsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	inv := NewInvoker(InvokerConfig{BaseURL: srv.URL})
	plugin, action := testPluginAction("GET")

	out, err := inv.Invoke(context.Background(), plugin, action, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestInvoker_NonSuccessStatusIsActionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{"error": "upstream down"})
	}))
	defer srv.Close()

	inv := NewInvoker(InvokerConfig{BaseURL: srv.URL})
	plugin, action := testPluginAction("GET")

	_, err := inv.Invoke(context.Background(), plugin, action, nil)
	require.Error(t, err)

	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, schema.ErrCodeAction, engErr.Code)
	assert.Equal(t, 502, engErr.Details["status"])
}

func TestInvoker_TransportFailureIsActionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	inv := NewInvoker(InvokerConfig{BaseURL: srv.URL})
	plugin, action := testPluginAction("GET")

	_, err := inv.Invoke(context.Background(), plugin, action, nil)
	require.Error(t, err)

	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, schema.ErrCodeAction, engErr.Code)
}

func TestInvoker_ResponseBodyLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write(make([]byte, 256))
	}))
	defer srv.Close()

	inv := NewInvoker(InvokerConfig{BaseURL: srv.URL, MaxResponseBody: 16})
	plugin, action := testPluginAction("GET")

	out, err := inv.Invoke(context.Background(), plugin, action, nil)
	require.NoError(t, err)
	assert.Len(t, out.(string), 16)
}
