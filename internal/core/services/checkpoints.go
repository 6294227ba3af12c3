package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/core/ports/driving"
)

// Ensure CheckpointService implements the interface.
var _ driving.CheckpointService = (*CheckpointService)(nil)

// DefaultCheckpointMaxAge is the retention applied when none is configured.
const DefaultCheckpointMaxAge = 24 * time.Hour

// CheckpointService manages retained checkpoints with a fixed retention.
type CheckpointService struct {
	store  driven.CheckpointStore
	maxAge time.Duration
}

// NewCheckpointService creates a checkpoint service.
func NewCheckpointService(store driven.CheckpointStore, maxAge time.Duration) *CheckpointService {
	if maxAge <= 0 {
		maxAge = DefaultCheckpointMaxAge
	}
	return &CheckpointService{store: store, maxAge: maxAge}
}

// List returns the retained checkpoints, most recent first.
func (s *CheckpointService) List(ctx context.Context) ([]domain.CheckpointInfo, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return infos, nil
}

// Sweep deletes checkpoints older than the retention.
func (s *CheckpointService) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.Sweep(ctx, s.maxAge)
	if err != nil {
		return n, fmt.Errorf("sweep checkpoints: %w", err)
	}
	return n, nil
}

// Clear deletes the checkpoints of one batch.
func (s *CheckpointService) Clear(ctx context.Context, batchID string) (int, error) {
	if batchID == "" {
		return 0, fmt.Errorf("batch id is required: %w", domain.ErrInvalidInput)
	}
	n, err := s.store.Clear(ctx, batchID)
	if err != nil {
		return n, fmt.Errorf("clear checkpoints: %w", err)
	}
	return n, nil
}
