package store

import (
	"time"

	"github.com/seriva/flowdeck/pkg/schema"
)

// Execution is the durable record of one workflow run. It is created at
// trigger time, mutated only by the execution engine that owns the run, and
// immutable once the status is terminal.
type Execution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	TriggerType schema.TriggerType     `json:"trigger_type"`
	Status      schema.ExecutionStatus `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	EndedAt     *time.Time             `json:"ended_at,omitempty"`
	Outputs     map[string]any         `json:"outputs,omitempty"` // node id → output, partial on failure
	Error       string                 `json:"error,omitempty"`
	Logs        []*LogEntry            `json:"logs,omitempty"` // populated by GetExecution
}

// LogEntry is one immutable line in an execution's append-only log.
type LogEntry struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id,omitempty"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Sequence    int64     `json:"sequence"`
}

// Log levels used in execution logs.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// ExecutionUpdate specifies mutable fields of an execution.
type ExecutionUpdate struct {
	Status  *schema.ExecutionStatus `json:"status,omitempty"`
	Outputs map[string]any          `json:"outputs,omitempty"`
	Error   *string                 `json:"error,omitempty"`
	EndedAt *time.Time              `json:"ended_at,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	WorkflowID string                  `json:"workflow_id,omitempty"`
	Status     *schema.ExecutionStatus `json:"status,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
	Offset     int                     `json:"offset,omitempty"`
}
