package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/seriva/flowdeck/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	nodes, edges, err := marshalGraph(wf)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, enabled, schedule, nodes, edges, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, nullStr(wf.Description), boolInt(wf.Enabled), nullStr(wf.Schedule),
		nodes, edges, timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, enabled, schedule, nodes, edges, created_at, updated_at
		 FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	return wf, err
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	nodes, edges, err := marshalGraph(wf)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, description = ?, enabled = ?, schedule = ?, nodes = ?, edges = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		wf.Name, nullStr(wf.Description), boolInt(wf.Enabled), nullStr(wf.Schedule), nodes, edges, wf.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", wf.ID)
}

func (s *LibSQLStore) ToggleWorkflow(ctx context.Context, id string, enabled bool) (*schema.Workflow, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolInt(enabled), id,
	)
	if err != nil {
		return nil, err
	}
	if err := checkRowsAffected(res, "workflow", id); err != nil {
		return nil, err
	}
	return s.GetWorkflow(ctx, id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context) ([]*schema.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, enabled, schedule, nodes, edges, created_at, updated_at
		 FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, ex *Execution) error {
	outputs, err := nullableMap(ex.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, trigger_type, status, started_at, ended_at, outputs, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.WorkflowID, string(ex.TriggerType), string(ex.Status),
		timeOrNow(ex.StartedAt), nullTime(ex.EndedAt), outputs, nullStr(ex.Error),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, trigger_type, status, started_at, ended_at, outputs, error
		 FROM executions WHERE id = ?`, id)
	ex, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	logs, err := s.GetLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	ex.Logs = logs
	return ex, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Outputs != nil {
		outputs, err := json.Marshal(update.Outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs: %w", err)
		}
		sets = append(sets, "outputs = ?")
		args = append(args, string(outputs))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, *update.EndedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, workflow_id, trigger_type, status, started_at, ended_at, outputs, error FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, ex)
	}
	return executions, rows.Err()
}

// --- Run log ---

// AppendLog appends a log entry with a monotonically increasing per-execution
// sequence. The sequence is issued inside a transaction so concurrent writers
// cannot interleave reads and writes.
func (s *LibSQLStore) AppendLog(ctx context.Context, entry *LogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM execution_logs WHERE execution_id = ?`, entry.ExecutionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	entry.Sequence = seq

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO execution_logs (execution_id, node_id, level, message, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ExecutionID, nullStr(entry.NodeID), entry.Level, entry.Message, entry.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit log entry: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetLogs(ctx context.Context, executionID string) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, node_id, level, message, timestamp, sequence
		 FROM execution_logs WHERE execution_id = ? ORDER BY sequence ASC`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		e := &LogEntry{}
		var nodeID sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &nodeID, &e.Level, &e.Message, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Maintenance ---

// FailDanglingExecutions marks executions left pending/running by a previous
// process as failed. Runs are never resumed across a restart.
func (s *LibSQLStore) FailDanglingExecutions(ctx context.Context, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error = ?, ended_at = CURRENT_TIMESTAMP
		 WHERE status IN (?, ?)`,
		string(schema.StatusFailed), reason, string(schema.StatusPending), string(schema.StatusRunning),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	var description, schedule sql.NullString
	var enabled int
	var nodesJSON, edgesJSON string
	err := row.Scan(&wf.ID, &wf.Name, &description, &enabled, &schedule, &nodesJSON, &edgesJSON, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	wf.Description = description.String
	wf.Schedule = schedule.String
	wf.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(nodesJSON), &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(edgesJSON), &wf.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return wf, nil
}

func scanExecution(row rowScanner) (*Execution, error) {
	ex := &Execution{}
	var triggerType, status string
	var endedAt sql.NullTime
	var outputs, errText sql.NullString
	err := row.Scan(&ex.ID, &ex.WorkflowID, &triggerType, &status, &ex.StartedAt, &endedAt, &outputs, &errText)
	if err != nil {
		return nil, err
	}
	ex.TriggerType = schema.TriggerType(triggerType)
	ex.Status = schema.ExecutionStatus(status)
	if endedAt.Valid {
		ex.EndedAt = &endedAt.Time
	}
	if outputs.Valid && outputs.String != "" {
		if err := json.Unmarshal([]byte(outputs.String), &ex.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	ex.Error = errText.String
	return ex, nil
}

func marshalGraph(wf *schema.Workflow) (string, string, error) {
	nodes, err := json.Marshal(wf.Nodes)
	if err != nil {
		return "", "", fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := json.Marshal(wf.Edges)
	if err != nil {
		return "", "", fmt.Errorf("marshal edges: %w", err)
	}
	return string(nodes), string(edges), nil
}

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableMap(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

var _ Store = (*LibSQLStore)(nil)
