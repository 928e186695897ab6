package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/seriva/flowdeck/internal/expressions"
	"github.com/seriva/flowdeck/internal/logging"
	"github.com/seriva/flowdeck/internal/plugins"
	"github.com/seriva/flowdeck/internal/store"
	"github.com/seriva/flowdeck/pkg/schema"
)

// Executor walks a workflow graph from its trigger node, one node at a time,
// propagating each node's output into the execution context. Every run and
// every node transition is persisted before the engine moves on.
type Executor struct {
	store      store.Store
	catalog    *plugins.Catalog
	invoker    *Invoker
	resolver   *expressions.Resolver
	conditions *ConditionEvaluator
	transforms *TransformRunner
	logger     *slog.Logger
}

// Config holds executor dependencies and tuning.
type Config struct {
	Store            store.Store
	Catalog          *plugins.Catalog
	Invoker          *Invoker
	TransformTimeout time.Duration
	Logger           *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("executor requires a store")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("executor requires a plugin catalog")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	resolver := expressions.NewResolver()
	transforms, err := NewTransformRunner(cfg.TransformTimeout)
	if err != nil {
		return nil, err
	}

	return &Executor{
		store:      cfg.Store,
		catalog:    cfg.Catalog,
		invoker:    cfg.Invoker,
		resolver:   resolver,
		conditions: NewConditionEvaluator(resolver),
		transforms: transforms,
		logger:     cfg.Logger,
	}, nil
}

// Execute runs the workflow to completion and returns the persisted
// execution record. payload seeds the trigger node's output (webhook body,
// manual invocation params); nil means an empty map.
//
// A false condition ends the run as completed at that node. Any node error
// ends the run as failed, with the context accumulated so far persisted as
// partial outputs.
func (e *Executor) Execute(ctx context.Context, wf *schema.Workflow, trigger schema.TriggerType, payload map[string]any) (*store.Execution, error) {
	exec, err := e.begin(ctx, wf, trigger)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, wf, exec, payload)
}

// Dispatch creates the execution record synchronously and runs the workflow
// in the background, detached from the caller's context. Handlers use it so
// delay nodes never hold a request open.
//
// The returned record is a snapshot of the pending execution. The background
// run mutates its own copy, so callers may read or encode the snapshot freely.
func (e *Executor) Dispatch(ctx context.Context, wf *schema.Workflow, trigger schema.TriggerType, payload map[string]any) (*store.Execution, error) {
	exec, err := e.begin(ctx, wf, trigger)
	if err != nil {
		return nil, err
	}
	snapshot := *exec
	go func() {
		if _, err := e.run(context.Background(), wf, exec, payload); err != nil {
			e.logger.Error("background execution failed",
				"workflow_id", wf.ID, "execution_id", exec.ID, "error", err)
		}
	}()
	return &snapshot, nil
}

// begin persists a pending execution record.
func (e *Executor) begin(ctx context.Context, wf *schema.Workflow, trigger schema.TriggerType) (*store.Execution, error) {
	exec := &store.Execution{
		ID:          uuid.NewString(),
		WorkflowID:  wf.ID,
		TriggerType: trigger,
		Status:      schema.StatusPending,
		StartedAt:   time.Now().UTC(),
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create execution").WithCause(err)
	}
	return exec, nil
}

// run walks the graph for a pending execution record.
func (e *Executor) run(ctx context.Context, wf *schema.Workflow, exec *store.Execution, payload map[string]any) (*store.Execution, error) {
	ctx = logging.WithWorkflowID(ctx, wf.ID)
	ctx = logging.WithExecutionID(ctx, exec.ID)

	triggerNode := wf.TriggerNode()
	if triggerNode == nil {
		return e.fail(ctx, exec, nil,
			schema.NewError(schema.ErrCodeValidation, "workflow has no trigger node"))
	}

	if err := e.transition(ctx, exec, schema.StatusRunning, nil); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "execution started", "trigger", exec.TriggerType)
	e.log(ctx, exec, "", store.LevelInfo,
		fmt.Sprintf("execution started (trigger: %s)", exec.TriggerType))

	if payload == nil {
		payload = map[string]any{}
	}
	execCtx := expressions.Context{triggerNode.ID: payload}
	e.log(ctx, exec, triggerNode.ID, store.LevelInfo,
		fmt.Sprintf("trigger node %q fired", triggerNode.ID))

	// Acyclic single-path graph: at most len(nodes) transitions.
	current := triggerNode
	for steps := 0; steps < len(wf.Nodes); steps++ {
		edge := wf.OutgoingEdge(current.ID)
		if edge == nil {
			break // sink reached
		}
		next := wf.NodeByID(edge.Target)
		if next == nil {
			return e.fail(ctx, exec, execCtx,
				schema.NewErrorf(schema.ErrCodeExecution, "edge targets unknown node %q", edge.Target))
		}

		if err := ctx.Err(); err != nil {
			return e.fail(ctx, exec, execCtx,
				schema.NewError(schema.ErrCodeExecution, "execution canceled").WithCause(err))
		}

		nodeCtx := logging.WithNodeID(ctx, next.ID)
		output, proceed, err := e.runNode(nodeCtx, exec, next, execCtx, execCtx[current.ID])
		if err != nil {
			var engErr *schema.EngineError
			if ee, ok := err.(*schema.EngineError); ok {
				engErr = ee.WithNode(next.ID)
			} else {
				engErr = schema.NewError(schema.ErrCodeExecution, err.Error()).WithNode(next.ID).WithCause(err)
			}
			return e.fail(ctx, exec, execCtx, engErr)
		}

		execCtx[next.ID] = output
		if !proceed {
			e.log(ctx, exec, next.ID, store.LevelInfo,
				fmt.Sprintf("condition node %q evaluated false, ending run", next.ID))
			break
		}
		current = next
	}

	endedAt := time.Now().UTC()
	outputs := map[string]any(execCtx)
	status := schema.StatusCompleted
	if err := e.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
		Status:  &status,
		Outputs: outputs,
		EndedAt: &endedAt,
	}); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "finalize execution").WithCause(err)
	}
	e.log(ctx, exec, "", store.LevelInfo, "execution completed")
	e.logger.InfoContext(ctx, "execution completed",
		"duration_ms", endedAt.Sub(exec.StartedAt).Milliseconds())

	exec.Status = status
	exec.Outputs = outputs
	exec.EndedAt = &endedAt
	return exec, nil
}

// runNode dispatches one node. It returns the node's output, whether the walk
// continues past it, and any terminal error.
func (e *Executor) runNode(ctx context.Context, exec *store.Execution, node *schema.Node, execCtx expressions.Context, upstream any) (any, bool, error) {
	started := time.Now()

	switch node.Subtype {
	case schema.SubtypePlugin:
		output, err := e.runAction(ctx, exec, node, execCtx)
		if err != nil {
			return nil, false, err
		}
		e.log(ctx, exec, node.ID, store.LevelInfo,
			fmt.Sprintf("action node %q completed in %dms", node.ID, time.Since(started).Milliseconds()))
		return output, true, nil

	case schema.SubtypeDelay:
		data, err := node.DelayData()
		if err != nil {
			return nil, false, schema.NewError(schema.ErrCodeValidation, err.Error())
		}
		dur := time.Duration(data.Delay * float64(time.Second))
		e.log(ctx, exec, node.ID, store.LevelInfo,
			fmt.Sprintf("delay node %q sleeping %s", node.ID, dur))
		timer := time.NewTimer(dur)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, false, schema.NewError(schema.ErrCodeExecution, "delay interrupted").WithCause(ctx.Err())
		}
		return map[string]any{"delayed_seconds": data.Delay}, true, nil

	case schema.SubtypeCondition:
		data, err := node.ConditionData()
		if err != nil {
			return nil, false, schema.NewError(schema.ErrCodeValidation, err.Error())
		}
		result, warnings, err := e.conditions.Evaluate(data, execCtx)
		e.logWarnings(ctx, exec, node.ID, warnings)
		if err != nil {
			return nil, false, err
		}
		e.log(ctx, exec, node.ID, store.LevelInfo,
			fmt.Sprintf("condition node %q evaluated %t (%s %s %s)",
				node.ID, result, data.Left, data.Operator, data.Right))
		return map[string]any{"result": result}, result, nil

	case schema.SubtypeTransform:
		data, err := node.TransformData()
		if err != nil {
			return nil, false, schema.NewError(schema.ErrCodeValidation, err.Error())
		}
		output, err := e.transforms.Run(ctx, data, upstream, execCtx)
		if err != nil {
			return nil, false, err
		}
		e.log(ctx, exec, node.ID, store.LevelInfo,
			fmt.Sprintf("transform node %q completed in %dms", node.ID, time.Since(started).Milliseconds()))
		return output, true, nil

	default:
		return nil, false, schema.NewErrorf(schema.ErrCodeExecution,
			"node %q has unexpected subtype %q mid-graph", node.ID, node.Subtype)
	}
}

// runAction resolves the node's parameters against the execution context and
// invokes the plugin endpoint.
func (e *Executor) runAction(ctx context.Context, exec *store.Execution, node *schema.Node, execCtx expressions.Context) (any, error) {
	data, err := node.ActionData()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	plugin, action, ok := e.catalog.Lookup(data.Plugin, data.Action)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"unknown plugin action %s/%s", data.Plugin, data.Action)
	}
	if e.invoker == nil {
		return nil, schema.NewError(schema.ErrCodeAction, "plugin invoker not configured")
	}

	resolved, warnings := e.resolver.ResolveValue(anyMap(data.Parameters), execCtx)
	e.logWarnings(ctx, exec, node.ID, warnings)

	params, _ := resolved.(map[string]any)
	e.log(ctx, exec, node.ID, store.LevelInfo,
		fmt.Sprintf("invoking %s/%s", data.Plugin, data.Action))

	return e.invoker.Invoke(ctx, plugin, action, params)
}

// fail marks the execution failed, persisting the partial context so users
// can inspect how far the run got.
func (e *Executor) fail(ctx context.Context, exec *store.Execution, execCtx expressions.Context, cause *schema.EngineError) (*store.Execution, error) {
	e.logger.ErrorContext(ctx, "execution failed", "error", cause.Error())
	e.log(ctx, exec, cause.NodeID, store.LevelError, cause.Error())

	endedAt := time.Now().UTC()
	status := schema.StatusFailed
	errMsg := cause.Error()
	update := store.ExecutionUpdate{
		Status:  &status,
		Error:   &errMsg,
		EndedAt: &endedAt,
	}
	if len(execCtx) > 0 {
		update.Outputs = map[string]any(execCtx)
	}
	if err := e.store.UpdateExecution(ctx, exec.ID, update); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist failure", "error", err)
	}

	exec.Status = status
	exec.Error = errMsg
	exec.Outputs = update.Outputs
	exec.EndedAt = &endedAt
	return exec, cause
}

func (e *Executor) transition(ctx context.Context, exec *store.Execution, status schema.ExecutionStatus, endedAt *time.Time) error {
	if err := e.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
		Status:  &status,
		EndedAt: endedAt,
	}); err != nil {
		return schema.NewError(schema.ErrCodeStore, "update execution status").WithCause(err)
	}
	exec.Status = status
	return nil
}

// log appends a durable run log entry. Log failures are reported but never
// abort the run.
func (e *Executor) log(ctx context.Context, exec *store.Execution, nodeID, level, message string) {
	entry := &store.LogEntry{
		ExecutionID: exec.ID,
		NodeID:      nodeID,
		Level:       level,
		Message:     message,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "failed to append run log", "error", err)
	}
}

func (e *Executor) logWarnings(ctx context.Context, exec *store.Execution, nodeID string, warnings []expressions.Warning) {
	for _, w := range warnings {
		e.logger.WarnContext(ctx, "unresolved reference", "reference", w.Reference)
		e.log(ctx, exec, nodeID, store.LevelWarning, w.Message)
	}
}

func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
