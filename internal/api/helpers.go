package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/seriva/flowdeck/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response. EngineErrors carry their code and
// details through; NOT_FOUND maps to 404.
func writeError(w http.ResponseWriter, status int, err error) {
	var engErr *schema.EngineError
	if errors.As(err, &engErr) {
		if engErr.Code == schema.ErrCodeNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]any{"error": engErr})
		return
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": schema.ErrCodeExecution, "message": err.Error()},
	})
}

// writeValidationFailure writes the full validation result with a 400.
func writeValidationFailure(w http.ResponseWriter, result *schema.ValidationResult) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":    schema.ErrCodeValidation,
			"message": "workflow validation failed",
		},
		"validation": result,
	})
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "malformed JSON body").WithCause(err)
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
