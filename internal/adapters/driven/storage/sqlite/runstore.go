package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// SaveRun stores or updates a run summary.
func (s *runStore) SaveRun(ctx context.Context, run *domain.RunResult) error {
	if run == nil || run.RunID == "" {
		return domain.ErrInvalidInput
	}

	chunks := 0
	if run.Send != nil {
		chunks = len(run.Send.Parts)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, status, batch_id, started_at, ended_at,
			documents, owners_total, owners_failed, chunks, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			batch_id = excluded.batch_id,
			ended_at = excluded.ended_at,
			documents = excluded.documents,
			owners_total = excluded.owners_total,
			owners_failed = excluded.owners_failed,
			chunks = excluded.chunks,
			error = excluded.error
	`, run.RunID, string(run.Status), nullString(run.BatchID),
		run.StartedAt.UTC().Format(time.RFC3339), formatNullableTime(run.EndedAt),
		run.Documents, run.OwnersTotal, run.OwnersFailed, chunks, nullString(run.Error))
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// ListRuns returns recent runs, most recent first.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.RunResult, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, status, batch_id, started_at, ended_at,
			documents, owners_total, owners_failed, chunks, error
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var run domain.RunResult
		var status, startedAt string
		var batchID, endedAt, errMsg sql.NullString
		var chunks int
		if err := rows.Scan(&run.RunID, &status, &batchID, &startedAt, &endedAt,
			&run.Documents, &run.OwnersTotal, &run.OwnersFailed, &chunks, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Status = domain.RunStatus(status)
		run.BatchID = batchID.String
		run.Error = errMsg.String
		run.StartedAt = parseTime(startedAt)
		run.EndedAt = parseNullableTime(endedAt)
		if chunks > 0 {
			run.Send = &domain.SendResult{
				BatchID: run.BatchID,
				Parts:   make([]domain.UploadResponse, chunks),
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}
