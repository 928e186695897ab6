package engine

import (
	"context"
	"sync"
	"time"

	"github.com/seriva/flowdeck/internal/store"
	"github.com/seriva/flowdeck/pkg/schema"
)

// memStore is an in-memory store.Store for executor tests.
type memStore struct {
	mu         sync.Mutex
	workflows  map[string]*schema.Workflow
	executions map[string]*store.Execution
	logs       map[string][]*store.LogEntry
}

func newMemStore() *memStore {
	return &memStore{
		workflows:  make(map[string]*schema.Workflow),
		executions: make(map[string]*store.Execution),
		logs:       make(map[string][]*store.LogEntry),
	}
}

func (m *memStore) CreateWorkflow(_ context.Context, wf *schema.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q exists", wf.ID)
	}
	m.workflows[wf.ID] = wf
	return nil
}

func (m *memStore) GetWorkflow(_ context.Context, id string) (*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	return wf, nil
}

func (m *memStore) UpdateWorkflow(_ context.Context, wf *schema.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", wf.ID)
	}
	m.workflows[wf.ID] = wf
	return nil
}

func (m *memStore) ToggleWorkflow(ctx context.Context, id string, enabled bool) (*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	wf.Enabled = enabled
	return wf, nil
}

func (m *memStore) ListWorkflows(_ context.Context) ([]*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*schema.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, wf)
	}
	return out, nil
}

func (m *memStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	delete(m.workflows, id)
	return nil
}

func (m *memStore) CreateExecution(_ context.Context, ex *store.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ex
	m.executions[ex.ID] = &cp
	return nil
}

func (m *memStore) GetExecution(_ context.Context, id string) (*store.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.executions[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	cp := *ex
	cp.Logs = m.logs[id]
	return &cp, nil
}

func (m *memStore) UpdateExecution(_ context.Context, id string, update store.ExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.executions[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	if update.Status != nil {
		ex.Status = *update.Status
	}
	if update.Outputs != nil {
		ex.Outputs = update.Outputs
	}
	if update.Error != nil {
		ex.Error = *update.Error
	}
	if update.EndedAt != nil {
		ex.EndedAt = update.EndedAt
	}
	return nil
}

func (m *memStore) ListExecutions(_ context.Context, filter store.ExecutionFilter) ([]*store.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Execution
	for _, ex := range m.executions {
		if filter.WorkflowID != "" && ex.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && ex.Status != *filter.Status {
			continue
		}
		cp := *ex
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) AppendLog(_ context.Context, entry *store.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Sequence = int64(len(m.logs[entry.ExecutionID]) + 1)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	m.logs[entry.ExecutionID] = append(m.logs[entry.ExecutionID], entry)
	return nil
}

func (m *memStore) GetLogs(_ context.Context, executionID string) ([]*store.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs[executionID], nil
}

func (m *memStore) FailDanglingExecutions(_ context.Context, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, ex := range m.executions {
		if !ex.Status.Terminal() {
			ex.Status = schema.StatusFailed
			ex.Error = reason
			ex.EndedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

var _ store.Store = (*memStore)(nil)
