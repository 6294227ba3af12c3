// Package ingest delivers batches to the downstream ingestion endpoint and
// posts notifications to the side channel.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/metrics"
)

// Ensure Uploader implements the interface.
var _ driven.BatchUploader = (*Uploader)(nil)

// Default configuration values.
const (
	DefaultChunkSize = 10
	DefaultTimeout   = time.Hour

	// maxErrorBody bounds the response text kept in an UploadError.
	maxErrorBody = 1024
)

// Config holds configuration for the uploader.
type Config struct {
	// URL is the ingestion endpoint (required).
	URL string

	// Authorization is sent verbatim as the Authorization header when set.
	Authorization string

	// ChunkSize is the number of documents per request (default: 10).
	ChunkSize int

	// Timeout bounds each request (default: 1h).
	Timeout time.Duration
}

// Uploader posts batches as multipart requests.
type Uploader struct {
	client    *http.Client
	url       string
	auth      string
	chunkSize int
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
}

// NewUploader creates an uploader.
func NewUploader(cfg Config, log logrus.FieldLogger, m *metrics.Metrics) (*Uploader, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ingest: URL is required: %w", domain.ErrInvalidInput)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Uploader{
		client:    &http.Client{Timeout: cfg.Timeout},
		url:       cfg.URL,
		auth:      cfg.Authorization,
		chunkSize: cfg.ChunkSize,
		log:       log.WithField("component", "uploader"),
		metrics:   m,
	}, nil
}

// Send posts the batch. Batches with more documents than the chunk size are
// split into ordered chunks sent one after another; only the first chunk
// carries the spreadsheet. The first failure aborts the remaining chunks.
//
// A send that has started is not cancelled with ctx: it runs until every
// chunk is delivered or one fails. The client timeout still bounds each
// request.
func (u *Uploader) Send(ctx context.Context, batch domain.Batch) (*domain.SendResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	defer func() { u.metrics.UploadSeconds(time.Since(start).Seconds()) }()

	chunks := splitDocuments(batch.Documents, u.chunkSize)
	total := len(chunks)
	log := u.log.WithField("batch_id", batch.ID)

	result := &domain.SendResult{BatchID: batch.ID}
	for i, docs := range chunks {
		current := i + 1
		meta := batch.Metadata
		meta.BatchInfo = &domain.BatchInfo{Current: current, Total: total}

		var sheet *domain.Attachment
		if i == 0 {
			sheet = batch.Spreadsheet
		}

		resp, err := u.post(ctx, meta, sheet, docs)
		if err != nil {
			u.metrics.Chunk(false)
			uerr := &domain.UploadError{BatchID: batch.ID, Chunk: current, Total: total}
			var herr *httpStatusError
			if errors.As(err, &herr) {
				uerr.StatusCode = herr.status
				uerr.Body = herr.body
			} else {
				uerr.Err = err
			}
			log.WithField("chunk", current).WithError(uerr).Error("upload failed")
			return result, uerr
		}

		u.metrics.Chunk(true)
		log.WithFields(logrus.Fields{
			"chunk":     current,
			"total":     total,
			"documents": len(docs),
			"status":    resp.StatusCode,
		}).Info("chunk sent")
		result.Parts = append(result.Parts, *resp)
	}
	return result, nil
}

// splitDocuments returns ceil(n/size) ordered chunks, or a single empty
// chunk when there are no documents.
func splitDocuments(docs []domain.BatchDocument, size int) [][]domain.BatchDocument {
	if len(docs) <= size {
		return [][]domain.BatchDocument{docs}
	}
	chunks := make([][]domain.BatchDocument, 0, (len(docs)+size-1)/size)
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		chunks = append(chunks, docs[start:end])
	}
	return chunks
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func (u *Uploader) post(ctx context.Context, meta domain.BatchMetadata, sheet *domain.Attachment, docs []domain.BatchDocument) (*domain.UploadResponse, error) {
	body, contentType, err := encodeChunk(meta, sheet, docs)
	if err != nil {
		return nil, fmt.Errorf("encode chunk: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if u.auth != "" {
		req.Header.Set("Authorization", u.auth)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, &domain.TransientNetworkError{Op: "post chunk", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransientNetworkError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httpStatusError{status: resp.StatusCode, body: truncate(string(raw), maxErrorBody)}
	}

	return &domain.UploadResponse{
		StatusCode: resp.StatusCode,
		Body:       decodeBody(raw),
	}, nil
}

// decodeBody returns the JSON value in raw, or a success envelope holding
// the raw text when the body does not parse.
func decodeBody(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return map[string]any{
		"status": "success",
		"data":   string(raw),
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
