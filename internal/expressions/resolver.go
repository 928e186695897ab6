package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Context is the execution context accumulated during one run: node id → output.
type Context map[string]any

// Warning records a template reference that could not be resolved.
// Warnings are non-fatal: the reference is substituted with an empty string
// and the run continues.
type Warning struct {
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// Resolver substitutes {{node_id.field}} references from the execution context.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve scans template for {{node_id.path}} tokens and replaces each with
// the stringified value from ctx. A template with no tokens is returned
// unchanged. Missing node ids or fields resolve to an empty string and
// produce a warning, never an error.
func (r *Resolver) Resolve(template string, ctx Context) (string, []Warning) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}

	var result strings.Builder
	result.Grow(len(template))
	var warnings []Warning

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 2 // skip "{{"

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			// Unclosed token: keep the rest verbatim.
			result.WriteString(template[i+idx:])
			break
		}
		end += start

		ref := strings.TrimSpace(template[start:end])
		val, ok := lookupPath(ctx, ref)
		if !ok {
			warnings = append(warnings, Warning{
				Reference: ref,
				Message:   fmt.Sprintf("reference %q not found in execution context", ref),
			})
			val = ""
		}
		result.WriteString(stringify(val))

		i = end + 2 // skip "}}"
	}

	return result.String(), warnings
}

// ResolveOperand resolves a condition operand. When the operand is exactly one
// {{...}} token the raw context value is returned, preserving its type so that
// array membership and numeric comparison see the original value. Otherwise it
// behaves like Resolve.
func (r *Resolver) ResolveOperand(operand string, ctx Context) (any, []Warning) {
	trimmed := strings.TrimSpace(operand)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		// A single whole-string token, not something like "{{a}} {{b}}".
		if !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}") {
			val, ok := lookupPath(ctx, inner)
			if !ok {
				return "", []Warning{{
					Reference: inner,
					Message:   fmt.Sprintf("reference %q not found in execution context", inner),
				}}
			}
			return val, nil
		}
	}
	return r.Resolve(operand, ctx)
}

// ResolveValue recursively resolves every string leaf of a structured value.
// Used to materialize an action node's parameters before invocation. A string
// that is exactly one token keeps the referenced value's type.
func (r *Resolver) ResolveValue(v any, ctx Context) (any, []Warning) {
	switch val := v.(type) {
	case string:
		return r.ResolveOperand(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		var warnings []Warning
		for k, item := range val {
			resolved, w := r.ResolveValue(item, ctx)
			out[k] = resolved
			warnings = append(warnings, w...)
		}
		return out, warnings
	case []any:
		out := make([]any, len(val))
		var warnings []Warning
		for i, item := range val {
			resolved, w := r.ResolveValue(item, ctx)
			out[i] = resolved
			warnings = append(warnings, w...)
		}
		return out, warnings
	default:
		return v, nil
	}
}

// lookupPath navigates ctx by a dot-delimited path: the first segment is a
// node id, the rest traverse nested maps in that node's output.
func lookupPath(ctx Context, path string) (any, bool) {
	if path == "" || ctx == nil {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current any

	v, ok := ctx[segments[0]]
	if !ok {
		return nil, false
	}
	current = v

	for _, seg := range segments[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stringify converts a resolved value into its inline string representation.
// Strings are embedded as-is; other values are JSON-encoded.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
