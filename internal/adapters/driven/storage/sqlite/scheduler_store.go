package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// schedulerStore implements driven.SchedulerStore on the scheduled_tasks
// and task_executions tables. Pipeline executions are read back joined to
// pipeline_runs, which supplies their batch id and document count.
type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

const taskColumns = `id, interval_seconds, enabled, last_run, next_run, last_run_id, last_status, last_error`

// Task returns nil and no error if the task was never saved.
func (s *schedulerStore) Task(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

func (s *schedulerStore) Tasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask //nolint:prealloc // size unknown from query
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled tasks: %w", err)
	}
	return tasks, nil
}

func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			interval_seconds = excluded.interval_seconds,
			enabled = excluded.enabled,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_run_id = excluded.last_run_id,
			last_status = excluded.last_status,
			last_error = excluded.last_error
	`, task.ID, int64(task.Interval/time.Second), boolToInt(task.Enabled),
		formatNullableTime(task.LastRun), formatNullableTime(task.NextRun),
		nullString(task.LastRunID), nullString(string(task.LastStatus)), nullString(task.LastError))
	if err != nil {
		return fmt.Errorf("saving scheduled task %s: %w", task.ID, err)
	}
	return nil
}

func (s *schedulerStore) RecordExecution(ctx context.Context, exec *domain.TaskExecution) error {
	if exec == nil || exec.TaskID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO task_executions (task_id, trigger_kind, started_at, ended_at, status, error, run_id, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, exec.TaskID, string(exec.Trigger),
		exec.StartedAt.UTC().Format(time.RFC3339), exec.EndedAt.UTC().Format(time.RFC3339),
		string(exec.Status), nullString(exec.Error), nullString(exec.RunID), exec.Removed)
	if err != nil {
		return fmt.Errorf("recording %s execution: %w", exec.TaskID, err)
	}
	return nil
}

// Executions orders by start time, then by insertion for executions that
// started within the same second.
func (s *schedulerStore) Executions(ctx context.Context, taskID string, limit int) ([]domain.TaskExecution, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT e.task_id, e.trigger_kind, e.started_at, e.ended_at, e.status, e.error,
			e.run_id, e.removed, r.batch_id, COALESCE(r.documents, 0)
		FROM task_executions e
		LEFT JOIN pipeline_runs r ON r.run_id = e.run_id
		WHERE ? = '' OR e.task_id = ?
		ORDER BY e.started_at DESC, e.id DESC
		LIMIT ?
	`, taskID, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying task executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.TaskExecution //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.TaskExecution
		var trigger, status, startedAt, endedAt string
		var errMsg, runID, batchID sql.NullString
		if err := rows.Scan(&e.TaskID, &trigger, &startedAt, &endedAt, &status, &errMsg,
			&runID, &e.Removed, &batchID, &e.Documents); err != nil {
			return nil, fmt.Errorf("scanning task execution: %w", err)
		}
		e.Trigger = domain.TaskTrigger(trigger)
		e.Status = domain.RunStatus(status)
		e.StartedAt = parseTime(startedAt)
		e.EndedAt = parseTime(endedAt)
		e.Error = errMsg.String
		e.RunID = runID.String
		e.BatchID = batchID.String
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task executions: %w", err)
	}
	return execs, nil
}

func (s *schedulerStore) PruneExecutions(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM task_executions
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY started_at DESC, id DESC) AS rn
				FROM task_executions
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning task executions: %w", err)
	}
	return nil
}

func scanTask(row interface{ Scan(dest ...any) error }) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var seconds int64
	var enabled int
	var lastRun, nextRun, lastRunID, lastStatus, lastError sql.NullString

	if err := row.Scan(&task.ID, &seconds, &enabled,
		&lastRun, &nextRun, &lastRunID, &lastStatus, &lastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning scheduled task: %w", err)
	}

	task.Interval = time.Duration(seconds) * time.Second
	task.Enabled = enabled == 1
	task.LastRun = parseNullableTime(lastRun)
	task.NextRun = parseNullableTime(nextRun)
	task.LastRunID = lastRunID.String
	task.LastStatus = domain.RunStatus(lastStatus.String)
	task.LastError = lastError.String
	return &task, nil
}
