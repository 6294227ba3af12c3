package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/core/ports/driving"
)

// Ensure RunHistory implements the interface.
var _ driving.RunHistory = (*RunHistory)(nil)

// DefaultHistoryLimit is the number of runs listed when no limit is given.
const DefaultHistoryLimit = 20

// RunHistory lists recorded pipeline runs.
type RunHistory struct {
	store driven.RunStore
}

// NewRunHistory creates a run history over a store.
func NewRunHistory(store driven.RunStore) *RunHistory {
	return &RunHistory{store: store}
}

// Runs returns the most recent runs first.
func (h *RunHistory) Runs(ctx context.Context, limit int) ([]domain.RunResult, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	runs, err := h.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
