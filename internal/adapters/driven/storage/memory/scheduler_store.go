package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// Ensure SchedulerStore implements the interface.
var _ driven.SchedulerStore = (*SchedulerStore)(nil)

// SchedulerStore keeps schedules and the execution log in memory.
type SchedulerStore struct {
	mu         sync.RWMutex
	tasks      map[string]domain.ScheduledTask
	executions []domain.TaskExecution
}

// NewSchedulerStore creates an empty store.
func NewSchedulerStore() *SchedulerStore {
	return &SchedulerStore{tasks: make(map[string]domain.ScheduledTask)}
}

// Task returns the schedule, or nil and no error if it was never saved.
func (s *SchedulerStore) Task(_ context.Context, id string) (*domain.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

// Tasks returns all schedules ordered by id.
func (s *SchedulerStore) Tasks(_ context.Context) ([]domain.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]domain.ScheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// SaveTask creates or replaces a schedule.
func (s *SchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

// RecordExecution appends to the log.
func (s *SchedulerStore) RecordExecution(_ context.Context, exec *domain.TaskExecution) error {
	if exec == nil || exec.TaskID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, *exec)
	return nil
}

// Executions returns the newest executions first. Executions recorded
// later win ties on start time.
func (s *SchedulerStore) Executions(_ context.Context, taskID string, limit int) ([]domain.TaskExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TaskExecution
	for i := len(s.executions) - 1; i >= 0; i-- {
		if e := s.executions[i]; taskID == "" || e.TaskID == taskID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneExecutions keeps the newest keep executions of each task.
func (s *SchedulerStore) PruneExecutions(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.executions, func(i, j int) bool {
		return s.executions[i].StartedAt.Before(s.executions[j].StartedAt)
	})
	counts := make(map[string]int)
	kept := make([]domain.TaskExecution, 0, len(s.executions))
	for i := len(s.executions) - 1; i >= 0; i-- {
		e := s.executions[i]
		if counts[e.TaskID] < keep {
			kept = append(kept, e)
			counts[e.TaskID]++
		}
	}
	// Back to oldest first
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	s.executions = kept
	return nil
}
