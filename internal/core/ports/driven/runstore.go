package driven

import (
	"context"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// RunStore keeps a record of pipeline runs for later inspection.
type RunStore interface {
	// SaveRun persists a run summary. Saving the same run id twice overwrites it.
	SaveRun(ctx context.Context, run *domain.RunResult) error

	// ListRuns returns recent runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]domain.RunResult, error)
}
