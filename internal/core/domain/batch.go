package domain

import "time"

// Attachment is an optional file sent alongside the documents of a batch.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// BatchDocument is one document of a batch. Documents keep their order.
type BatchDocument struct {
	// Name is the multipart key, unique within the batch.
	Name       string
	Owner      string
	DocumentID string
	Content    []byte

	// Delta is true when the document was not confirmed by a prior cycle.
	Delta bool
}

// OwnerSummary is the per-owner part of batch metadata.
type OwnerSummary struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// BatchStats are the counters reported in batch metadata.
type BatchStats struct {
	TotalOwners    int `json:"total_owners"`
	SuccessCount   int `json:"success_count"`
	Documents      int `json:"documents"`
	DeltaDocuments int `json:"delta_documents"`
}

// BatchInfo tags a chunk with its position within a batch.
type BatchInfo struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// BatchMetadata is sent as the metadata field of every upload request.
type BatchMetadata struct {
	BatchID   string         `json:"batch_id"`
	Timestamp time.Time      `json:"timestamp"`
	Owners    []OwnerSummary `json:"owners"`
	Stats     BatchStats     `json:"stats"`

	// BatchInfo is set per chunk by the uploader.
	BatchInfo *BatchInfo `json:"batch_info,omitempty"`
}

// Batch is one upload attempt's artifacts and identifier.
type Batch struct {
	ID          string
	Spreadsheet *Attachment
	Documents   []BatchDocument
	Metadata    BatchMetadata
}

// DeltaDocuments returns the documents flagged as delta, grouped by owner.
func (b Batch) DeltaDocuments() map[string][]string {
	out := make(map[string][]string)
	for _, d := range b.Documents {
		if d.Delta {
			out[d.Owner] = append(out[d.Owner], d.DocumentID)
		}
	}
	return out
}

// UploadResponse is the decoded answer of the ingestion endpoint for one
// request. Body is the decoded JSON value, or a success envelope around the
// raw text when the body is not JSON.
type UploadResponse struct {
	StatusCode int
	Body       any
}

// SendResult holds the ordered responses of one send call.
type SendResult struct {
	BatchID string
	Parts   []UploadResponse
}

// CheckpointInfo identifies a persisted, not yet confirmed batch.
type CheckpointInfo struct {
	BatchID   string
	CreatedAt time.Time
	Path      string
}
