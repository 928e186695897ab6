package store

import (
	"context"

	"github.com/seriva/flowdeck/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *schema.Workflow) error
	ToggleWorkflow(ctx context.Context, id string, enabled bool) (*schema.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*schema.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Executions
	CreateExecution(ctx context.Context, ex *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Run log (append-only)
	AppendLog(ctx context.Context, entry *LogEntry) error
	GetLogs(ctx context.Context, executionID string) ([]*LogEntry, error)

	// FailDanglingExecutions marks executions still pending/running as failed.
	// Called once at startup; the engine never resumes runs across a restart.
	FailDanglingExecutions(ctx context.Context, reason string) (int, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
