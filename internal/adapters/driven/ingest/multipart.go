package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// Multipart field names understood by the ingestion endpoint.
const (
	FieldMetadata    = "metadata"
	FieldSpreadsheet = "excel_file"
	DocumentPrefix   = "pdf_"

	spreadsheetType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	documentType    = "application/pdf"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeChunk writes one multipart request body and returns its content type.
func encodeChunk(meta domain.BatchMetadata, sheet *domain.Attachment, docs []domain.BatchDocument) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writePart(w, FieldMetadata, "", "application/json", metaJSON); err != nil {
		return nil, "", err
	}

	if sheet != nil {
		contentType := sheet.ContentType
		if contentType == "" {
			contentType = spreadsheetType
		}
		filename := sheet.Filename
		if filename == "" {
			filename = "data.xlsx"
		}
		if err := writePart(w, FieldSpreadsheet, filename, contentType, sheet.Content); err != nil {
			return nil, "", err
		}
	}

	for _, doc := range docs {
		if err := writePart(w, DocumentPrefix+doc.Name, doc.Name+".pdf", documentType, doc.Content); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, w.FormDataContentType(), nil
}

func writePart(w *multipart.Writer, field, filename, contentType string, content []byte) error {
	disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(field))
	if filename != "" {
		disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(filename))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", disposition)
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", field, err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write part %s: %w", field, err)
	}
	return nil
}
