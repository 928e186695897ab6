package engine

import (
	"context"
	"time"

	"github.com/seriva/flowdeck/internal/expressions"
	"github.com/seriva/flowdeck/pkg/schema"
)

const defaultTransformTimeout = 5 * time.Second

// TransformRunner evaluates transform node expressions in one of the
// sandboxed engines (expr by default). Every evaluation runs under a
// watchdog timeout so a pathological expression cannot stall a run.
type TransformRunner struct {
	engines map[schema.TransformLanguage]expressions.Engine
	timeout time.Duration
}

// NewTransformRunner creates a TransformRunner with all three engines
// registered. A non-positive timeout falls back to the 5s default.
func NewTransformRunner(timeout time.Duration) (*TransformRunner, error) {
	if timeout <= 0 {
		timeout = defaultTransformTimeout
	}

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}

	return &TransformRunner{
		engines: map[schema.TransformLanguage]expressions.Engine{
			schema.LangExpr: expressions.NewExprEngine(),
			schema.LangJQ:   expressions.NewGoJQEngine(),
			schema.LangCEL:  celEngine,
		},
		timeout: timeout,
	}, nil
}

// Run evaluates the expression with `input` bound to the upstream node's
// output and `context` bound to the full execution context.
func (r *TransformRunner) Run(ctx context.Context, data *schema.TransformData, input any, execCtx expressions.Context) (any, error) {
	lang := data.Language
	if lang == "" {
		lang = schema.LangExpr
	}
	engine, ok := r.engines[lang]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeTransform, "unknown transform language %q", lang)
	}

	evalCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	env := map[string]any{
		"input":   input,
		"context": map[string]any(execCtx),
	}

	type evalResult struct {
		value any
		err   error
	}
	done := make(chan evalResult, 1)
	go func() {
		value, err := engine.Evaluate(evalCtx, data.Expression, env)
		done <- evalResult{value, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeTransform,
				"%s evaluation failed: %v", engine.Name(), res.err).WithCause(res.err)
		}
		return res.value, nil
	case <-evalCtx.Done():
		if ctx.Err() != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "transform canceled").WithCause(ctx.Err())
		}
		return nil, schema.NewErrorf(schema.ErrCodeTimeout,
			"transform exceeded %s timeout", r.timeout)
	}
}
