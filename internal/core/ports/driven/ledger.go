package driven

import (
	"context"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// Ledger persists the set of document ids already seen per owner.
// Implementations must accept concurrent writes.
type Ledger interface {
	// Get returns every id recorded for the owner.
	// An unknown owner yields an empty set and no error.
	Get(ctx context.Context, owner string) (domain.IDSet, error)

	// Put records an entry. Writing an (owner, id) pair that already
	// exists is a no-op and the original entry is kept.
	Put(ctx context.Context, entry domain.LedgerEntry) error

	// Scan returns every entry across all owners.
	Scan(ctx context.Context) ([]domain.LedgerEntry, error)
}
