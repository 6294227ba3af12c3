package driven

import (
	"context"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// BatchUploader delivers a batch to the downstream ingestion endpoint.
type BatchUploader interface {
	// Send posts the batch, splitting it into sequential chunks when it holds
	// more documents than the configured threshold. The first failing chunk
	// aborts the call with a *domain.UploadError.
	Send(ctx context.Context, batch domain.Batch) (*domain.SendResult, error)
}

// Notifier posts short operational messages to a side channel.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
