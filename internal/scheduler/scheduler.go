package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seriva/flowdeck/pkg/schema"
)

// WorkflowRunner is the interface the scheduler uses to run workflows.
// Satisfied by the executor service (avoids import cycle).
type WorkflowRunner interface {
	RunScheduled(ctx context.Context, workflowID string) error
}

// Entry is a snapshot of one scheduled workflow for status reporting.
type Entry struct {
	WorkflowID string    `json:"workflow_id"`
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	NextRun    time.Time `json:"next_run"`
	PrevRun    time.Time `json:"prev_run,omitempty"`
}

// Scheduler registers enabled workflows with cron schedules and fires them.
// A workflow still running when its schedule fires again is skipped, never
// run concurrently with itself.
type Scheduler struct {
	runner WorkflowRunner
	cron   *cron.Cron
	parser cron.Parser
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // workflow ID → cron entry
	names   map[string]string       // workflow ID → display name
	specs   map[string]string       // workflow ID → cron expression

	inflightMu sync.Mutex
	inflight   map[string]struct{} // workflow IDs currently executing (dedup)
}

// NewScheduler creates a Scheduler using the standard 5-field cron grammar.
func NewScheduler(runner WorkflowRunner, logger *slog.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		runner:   runner,
		cron:     cron.New(cron.WithParser(parser)),
		parser:   parser,
		logger:   logger,
		entries:  make(map[string]cron.EntryID),
		names:    make(map[string]string),
		specs:    make(map[string]string),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the cron loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Sync reconciles one workflow's registration with its current state:
// enabled workflows with a cron expression are (re)registered, everything
// else is unregistered.
func (s *Scheduler) Sync(wf *schema.Workflow) error {
	if !wf.Enabled || wf.Schedule == "" {
		s.Unregister(wf.ID)
		return nil
	}
	return s.Register(wf)
}

// Register adds or replaces the cron entry for a workflow.
func (s *Scheduler) Register(wf *schema.Workflow) error {
	if _, err := s.parser.Parse(wf.Schedule); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"invalid cron expression %q: %v", wf.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[wf.ID]; ok {
		s.cron.Remove(old)
	}

	workflowID := wf.ID
	id, err := s.cron.AddFunc(wf.Schedule, func() {
		s.fire(workflowID)
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"register schedule %q: %v", wf.Schedule, err)
	}

	s.entries[wf.ID] = id
	s.names[wf.ID] = wf.Name
	s.specs[wf.ID] = wf.Schedule
	s.logger.Info("workflow scheduled",
		slog.String("workflow_id", wf.ID),
		slog.String("schedule", wf.Schedule),
	)
	return nil
}

// Unregister removes a workflow's cron entry if present.
func (s *Scheduler) Unregister(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[workflowID]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.entries, workflowID)
	delete(s.names, workflowID)
	delete(s.specs, workflowID)
	s.logger.Info("workflow unscheduled", slog.String("workflow_id", workflowID))
}

// fire runs one scheduled occurrence. Overlapping occurrences are skipped.
func (s *Scheduler) fire(workflowID string) {
	if !s.tryAcquire(workflowID) {
		s.logger.Warn("scheduled run skipped, previous run still in flight",
			slog.String("workflow_id", workflowID),
			slog.String("code", schema.ErrCodeSchedulerSkip),
		)
		return
	}
	defer s.release(workflowID)

	if err := s.runner.RunScheduled(context.Background(), workflowID); err != nil {
		s.logger.Error("scheduled run failed",
			slog.String("workflow_id", workflowID),
			slog.String("error", err.Error()),
		)
	}
}

// tryAcquire returns true and marks the workflow in-flight if it is not already running.
func (s *Scheduler) tryAcquire(workflowID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[workflowID]; ok {
		return false
	}
	s.inflight[workflowID] = struct{}{}
	return true
}

// release removes the workflow from the in-flight set.
func (s *Scheduler) release(workflowID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, workflowID)
}

// Entries returns a snapshot of all registered schedules sorted by next run.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for wfID, entryID := range s.entries {
		e := s.cron.Entry(entryID)
		out = append(out, Entry{
			WorkflowID: wfID,
			Name:       s.names[wfID],
			Schedule:   s.specs[wfID],
			NextRun:    e.Next,
			PrevRun:    e.Prev,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out
}

// NextRun computes when a cron expression would next fire from the given time.
func (s *Scheduler) NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation,
			"parse cron expression %q: %v", spec, err)
	}
	return sched.Next(from), nil
}
