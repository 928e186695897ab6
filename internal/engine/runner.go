package engine

import (
	"context"

	"github.com/seriva/flowdeck/internal/store"
	"github.com/seriva/flowdeck/pkg/schema"
)

// ScheduledRunner adapts the executor to the scheduler's callback interface.
// It re-reads the workflow at fire time so edits and toggles between ticks
// always win.
type ScheduledRunner struct {
	store    store.Store
	executor *Executor
}

// NewScheduledRunner creates a ScheduledRunner.
func NewScheduledRunner(s store.Store, e *Executor) *ScheduledRunner {
	return &ScheduledRunner{store: s, executor: e}
}

// RunScheduled executes one scheduled occurrence of a workflow synchronously.
// The scheduler's in-flight dedup relies on this blocking until the run ends.
func (r *ScheduledRunner) RunScheduled(ctx context.Context, workflowID string) error {
	wf, err := r.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if !wf.Enabled {
		return nil // disabled between ticks
	}
	_, err = r.executor.Execute(ctx, wf, schema.TriggerSchedule, nil)
	return err
}
