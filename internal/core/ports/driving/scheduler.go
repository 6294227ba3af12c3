package driving

import (
	"context"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// Scheduler runs the pipeline and checkpoint sweep in the background.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error

	// Trigger runs a task ahead of its schedule.
	Trigger(ctx context.Context, taskID string) error

	// Tasks returns the saved schedules.
	Tasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// Executions returns recent executions, newest first. An empty taskID
	// covers every task.
	Executions(ctx context.Context, taskID string, limit int) ([]domain.TaskExecution, error)
}
