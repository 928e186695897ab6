package engine

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/seriva/flowdeck/internal/expressions"
	"github.com/seriva/flowdeck/pkg/schema"
)

// ConditionEvaluator resolves and compares the two operands of a condition
// node. Operands that are a single {{...}} token keep the referenced value's
// type, so arrays support membership checks and numbers compare numerically.
type ConditionEvaluator struct {
	resolver *expressions.Resolver
}

// NewConditionEvaluator creates a ConditionEvaluator.
func NewConditionEvaluator(resolver *expressions.Resolver) *ConditionEvaluator {
	return &ConditionEvaluator{resolver: resolver}
}

// Evaluate resolves both operands against the execution context and applies
// the operator. Unresolvable references resolve to empty values and are
// reported as warnings, not errors.
func (e *ConditionEvaluator) Evaluate(data *schema.ConditionData, ctx expressions.Context) (bool, []expressions.Warning, error) {
	left, lw := e.resolver.ResolveOperand(data.Left, ctx)
	right, rw := e.resolver.ResolveOperand(data.Right, ctx)
	warnings := append(lw, rw...)

	result, err := compare(left, right, data.Operator)
	if err != nil {
		return false, warnings, err
	}
	return result, warnings, nil
}

func compare(left, right any, op schema.ConditionOperator) (bool, error) {
	switch op {
	case schema.OpEquals:
		return valuesEqual(left, right), nil
	case schema.OpNotEquals:
		return !valuesEqual(left, right), nil
	case schema.OpContains:
		return contains(left, right), nil
	case schema.OpGreaterThan:
		return ordered(left, right) > 0, nil
	case schema.OpLessThan:
		return ordered(left, right) < 0, nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation, "unknown condition operator %q", op)
	}
}

// valuesEqual compares the resolved values directly: deep equality first,
// then string representations. Numeric parsing is reserved for the ordering
// operators, so "5" and "5.0" are not equal.
func valuesEqual(left, right any) bool {
	if reflect.DeepEqual(left, right) {
		return true
	}
	return asString(left) == asString(right)
}

// ordered returns -1, 0, or 1. Numeric comparison when both sides parse as
// numbers, lexicographic string comparison otherwise.
func ordered(left, right any) int {
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	if lok && rok {
		switch {
		case lf < rf:
			return -1
		case lf > rf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(asString(left), asString(right))
}

// contains is membership when the left side is an array, substring otherwise.
func contains(left, right any) bool {
	if items, ok := left.([]any); ok {
		for _, item := range items {
			if valuesEqual(item, right) {
				return true
			}
		}
		return false
	}
	return strings.Contains(asString(left), asString(right))
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
