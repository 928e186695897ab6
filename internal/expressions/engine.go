package expressions

import "context"

// Engine evaluates a user-authored transform expression in a restricted
// interpreter. Three implementations: Expr (default), GoJQ, CEL. All are
// non-Turing-complete and have no ambient file, process, or network access.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
