package domain

import "time"

// Recurring tasks run by the scheduler.
const (
	TaskIDPipelineRun     = "pipeline-run"
	TaskIDCheckpointSweep = "checkpoint-sweep"
)

// TaskIDs lists the recurring tasks in the order they are set up.
func TaskIDs() []string {
	return []string{TaskIDPipelineRun, TaskIDCheckpointSweep}
}

// TaskTrigger tells what started an execution.
type TaskTrigger string

const (
	// TriggerSchedule is an execution that fell due.
	TriggerSchedule TaskTrigger = "schedule"

	// TriggerOnDemand is an execution requested ahead of schedule, for
	// example by a change in the watched inbox.
	TriggerOnDemand TaskTrigger = "on-demand"
)

// ScheduledTask is the persisted schedule of one recurring task together
// with the outcome of its latest execution.
type ScheduledTask struct {
	ID       string
	Interval time.Duration
	Enabled  bool

	LastRun time.Time
	NextRun time.Time

	// LastRunID is the pipeline run produced by the latest execution.
	LastRunID  string
	LastStatus RunStatus
	LastError  string
}

// Due reports whether the task should run at now.
func (t ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && (t.NextRun.IsZero() || !t.NextRun.After(now))
}

// Record folds a finished execution into the schedule and moves NextRun one
// interval past its end.
func (t *ScheduledTask) Record(e TaskExecution) {
	t.LastRun = e.StartedAt
	t.NextRun = e.EndedAt.Add(t.Interval)
	t.LastRunID = e.RunID
	t.LastStatus = e.Status
	t.LastError = e.Error
}

// TaskExecution is one recorded execution of a scheduled task.
//
// A pipeline-run execution links to the pipeline run it produced through
// RunID; BatchID and Documents describe that run. A sweep execution
// reports the checkpoints it removed.
type TaskExecution struct {
	TaskID    string
	Trigger   TaskTrigger
	StartedAt time.Time
	EndedAt   time.Time

	// Status is the run status for pipeline runs; a sweep is either
	// completed or failed.
	Status RunStatus
	Error  string

	RunID     string
	BatchID   string
	Documents int

	Removed int
}

// Succeeded reports whether the execution finished without error.
func (e TaskExecution) Succeeded() bool {
	return e.Error == ""
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// Tasks holds per-task configuration keyed by task id.
	Tasks map[string]TaskConfig
}

// TaskConfig holds configuration for a single task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Task returns the configuration of a task, zero when it is not configured.
func (c SchedulerConfig) Task(id string) TaskConfig {
	return c.Tasks[id]
}

// Active reports whether a task should be scheduled at all.
func (c SchedulerConfig) Active(id string) bool {
	tc := c.Task(id)
	return c.Enabled && tc.Enabled && tc.Interval > 0
}

// DefaultSchedulerConfig runs the pipeline daily and sweeps checkpoints
// hourly.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		Tasks: map[string]TaskConfig{
			TaskIDPipelineRun:     {Enabled: true, Interval: 24 * time.Hour},
			TaskIDCheckpointSweep: {Enabled: true, Interval: time.Hour},
		},
	}
}
