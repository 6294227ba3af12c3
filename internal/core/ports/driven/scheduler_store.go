package driven

import (
	"context"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// SchedulerStore persists task schedules and their execution log so a
// restarted scheduler picks up where it stopped.
type SchedulerStore interface {
	// Task returns a task's schedule, or nil and no error if it was
	// never saved.
	Task(ctx context.Context, id string) (*domain.ScheduledTask, error)

	// Tasks returns every saved schedule ordered by id.
	Tasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask creates or replaces a schedule.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	// RecordExecution appends a finished execution to the log.
	RecordExecution(ctx context.Context, exec *domain.TaskExecution) error

	// Executions returns the most recent executions first. An empty
	// taskID returns executions of every task.
	Executions(ctx context.Context, taskID string, limit int) ([]domain.TaskExecution, error)

	// PruneExecutions keeps the newest keep executions of each task.
	PruneExecutions(ctx context.Context, keep int) error
}
