package driven

import (
	"context"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// DocumentSource lists owners and fetches their documents from the portal.
// Session handling and scraping live behind this interface.
type DocumentSource interface {
	// ListOwners returns the owners to process, in a stable order.
	ListOwners(ctx context.Context) ([]domain.Owner, error)

	// ListDocuments returns the documents currently published for an owner.
	ListDocuments(ctx context.Context, owner domain.Owner) ([]domain.DocumentRef, error)

	// Download fetches the content of a document.
	Download(ctx context.Context, owner domain.Owner, ref domain.DocumentRef) ([]byte, error)
}

// SpreadsheetBuilder renders the summary attachment of a batch.
// Returning a nil attachment means the batch carries none.
type SpreadsheetBuilder interface {
	Build(ctx context.Context, results []domain.OwnerResult) (*domain.Attachment, error)
}

// SourceWatcher reports that the documents published by a source changed.
type SourceWatcher interface {
	// Watch calls onChange after each settled burst of changes.
	// Blocks until ctx is cancelled.
	Watch(ctx context.Context, onChange func()) error
}
