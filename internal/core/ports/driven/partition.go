package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// PartitionStore keeps downloaded documents in two local areas: delta for
// documents not yet confirmed by a completed cycle and base for the rest.
// A given (owner, id) exists in at most one area at any time.
type PartitionStore interface {
	// Place writes content into the area named by the record's partition and
	// removes any copy from the other area. It returns the stored record.
	Place(ctx context.Context, record domain.DocumentRecord, content []byte) (domain.DocumentRecord, error)

	// Read returns the content and current placement of a document.
	// Returns domain.ErrNotFound when the document is in neither area.
	Read(ctx context.Context, owner, id string) ([]byte, domain.DocumentRecord, error)

	// List returns every document stored for an owner across both areas,
	// ordered by id.
	List(ctx context.Context, owner string) ([]domain.DocumentRecord, error)

	// ReconcileByPresence classifies ids from where their files are found.
	ReconcileByPresence(ctx context.Context, owner string, ids []string) (*domain.ReconcileReport, error)

	// ReconcileByDate moves documents so that those dated strictly after
	// reference sit in delta and the rest sit in base.
	ReconcileByDate(ctx context.Context, owner string, refs []domain.DocumentRef, reference time.Time) (*domain.ReconcileReport, error)

	// Promote moves delta copies of ids to base.
	Promote(ctx context.Context, owner string, ids []string) (*domain.ReconcileReport, error)
}
