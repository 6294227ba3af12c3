package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// CheckpointStore persists batches that have not been confirmed as sent.
type CheckpointStore interface {
	// Save persists the batch, replacing earlier checkpoints of the same batch id.
	Save(ctx context.Context, batch domain.Batch) (domain.CheckpointInfo, error)

	// Load reads a checkpoint back.
	// Returns domain.ErrCheckpointVersion or domain.ErrCheckpointCorrupt
	// for files that cannot be trusted.
	Load(ctx context.Context, info domain.CheckpointInfo) (*domain.Batch, error)

	// Clear deletes every checkpoint of the batch id and returns the count.
	Clear(ctx context.Context, batchID string) (int, error)

	// Latest returns the most recently created checkpoint, or nil when none exist.
	Latest(ctx context.Context) (*domain.CheckpointInfo, error)

	// List returns all checkpoints, most recent first.
	List(ctx context.Context) ([]domain.CheckpointInfo, error)

	// Sweep deletes checkpoints older than maxAge and returns the count.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}
