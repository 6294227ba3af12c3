// Package spreadsheet renders the per-owner summary attached to a batch.
package spreadsheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// Ensure CSVBuilder implements the interface.
var _ driven.SpreadsheetBuilder = (*CSVBuilder)(nil)

// Defaults for the attachment.
const (
	DefaultFilename = "summary.csv"
	ContentType     = "text/csv"
)

var header = []string{
	"owner_key",
	"owner_name",
	"status",
	"documents",
	"new_documents",
	"delta_documents",
	"degraded",
	"error",
}

// CSVBuilder writes one row per owner.
type CSVBuilder struct {
	filename string
}

// NewCSVBuilder creates a builder. An empty filename selects DefaultFilename.
func NewCSVBuilder(filename string) *CSVBuilder {
	if filename == "" {
		filename = DefaultFilename
	}
	return &CSVBuilder{filename: filename}
}

// Build renders the summary. No results means no attachment.
func (b *CSVBuilder) Build(ctx context.Context, results []domain.OwnerResult) (*domain.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(row(r)); err != nil {
			return nil, fmt.Errorf("write row %s: %w", r.Owner.Key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush summary: %w", err)
	}

	return &domain.Attachment{
		Filename:    b.filename,
		ContentType: ContentType,
		Content:     buf.Bytes(),
	}, nil
}

func row(r domain.OwnerResult) []string {
	status := "ok"
	errText := ""
	if r.Err != nil {
		status = "failed"
		errText = r.Err.Error()
	}
	delta := 0
	for _, rec := range r.Records {
		if rec.IsDelta() {
			delta++
		}
	}
	return []string{
		r.Owner.Key,
		r.Owner.Name,
		status,
		strconv.Itoa(len(r.Records)),
		strconv.Itoa(r.NewCount),
		strconv.Itoa(delta),
		strconv.FormatBool(r.Degraded),
		errText,
	}
}
