package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seriva/flowdeck/internal/plugins"
	"github.com/seriva/flowdeck/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultInvokeTimeout   = 30 * time.Second
)

// InvokerConfig configures the plugin HTTP invoker.
type InvokerConfig struct {
	// BaseURL is the dashboard root, e.g. "http://localhost:8080".
	// Plugin endpoints resolve to {BaseURL}/plugins/{plugin}{endpoint}.
	BaseURL         string
	Timeout         time.Duration
	MaxResponseBody int64
}

// Invoker calls plugin action endpoints over HTTP. GET requests carry
// parameters as query strings, every other method sends a JSON body.
type Invoker struct {
	config InvokerConfig
	client *http.Client
}

// NewInvoker creates an Invoker.
func NewInvoker(cfg InvokerConfig) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultInvokeTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	return &Invoker{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Invoke calls the plugin action with the resolved parameters and returns the
// decoded response body. Transport failures and non-2xx statuses both map to
// ACTION_ERROR with status and body in the details.
func (inv *Invoker) Invoke(ctx context.Context, plugin *plugins.Plugin, action *plugins.Action, params map[string]any) (any, error) {
	endpoint := fmt.Sprintf("%s/plugins/%s%s",
		strings.TrimRight(inv.config.BaseURL, "/"), plugin.Name, action.Endpoint)

	method := strings.ToUpper(action.Method)

	var bodyReader io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, paramString(v))
			}
			endpoint += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, err := json.Marshal(params)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeAction,
				"marshal parameters for %s/%s", plugin.Name, action.ID).WithCause(err)
		}
		bodyReader = strings.NewReader(string(b))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"build request for %s/%s", plugin.Name, action.ID).WithCause(err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := inv.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"%s/%s request failed: %v", plugin.Name, action.ID, err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, inv.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"read response from %s/%s", plugin.Name, action.ID).WithCause(err)
	}

	parsed := parseBody(resp.Header.Get("Content-Type"), bodyBytes)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"%s/%s returned %d", plugin.Name, action.ID, resp.StatusCode).
			WithDetails(map[string]any{
				"status": resp.StatusCode,
				"body":   parsed,
			})
	}

	return parsed, nil
}

// parseBody decodes JSON responses, passes everything else through as a string.
func parseBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			return decoded
		}
	}
	return string(body)
}

// paramString renders a parameter value for a query string. Strings pass
// through, everything else is JSON-encoded.
func paramString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
