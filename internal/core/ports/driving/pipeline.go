package driving

import (
	"context"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// Pipeline runs the fetch, classify, upload cycle.
type Pipeline interface {
	// Run resumes a pending checkpoint if one exists and otherwise collects,
	// assembles and sends a fresh batch.
	Run(ctx context.Context, opts domain.RunOptions) (*domain.RunResult, error)

	// Resume resends the most recent checkpoint.
	// Returns nil and no error when there is nothing to resume.
	Resume(ctx context.Context) (*domain.RunResult, error)

	// Reconcile runs a standalone reconciliation pass.
	Reconcile(ctx context.Context, req domain.ReconcileRequest) ([]domain.ReconcileReport, error)
}

// LedgerService exposes the known-document ledger.
type LedgerService interface {
	// Known returns the ids recorded for an owner.
	Known(ctx context.Context, owner string) (domain.IDSet, error)

	// Entries returns every ledger entry.
	Entries(ctx context.Context) ([]domain.LedgerEntry, error)
}

// CheckpointService manages retained checkpoints.
type CheckpointService interface {
	List(ctx context.Context) ([]domain.CheckpointInfo, error)

	// Sweep deletes checkpoints older than the configured retention.
	Sweep(ctx context.Context) (int, error)

	// Clear deletes the checkpoints of one batch.
	Clear(ctx context.Context, batchID string) (int, error)
}

// RunHistory lists recorded pipeline runs.
type RunHistory interface {
	Runs(ctx context.Context, limit int) ([]domain.RunResult, error)
}
