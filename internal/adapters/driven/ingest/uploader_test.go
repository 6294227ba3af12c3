package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/logger"
)

// receivedChunk is what the fake endpoint saw in one request.
type receivedChunk struct {
	auth      string
	metadata  domain.BatchMetadata
	sheet     string
	documents []string
}

type fakeEndpoint struct {
	mu     sync.Mutex
	chunks []receivedChunk
	reply  func(n int) (int, string)
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var chunk receivedChunk
	chunk.auth = r.Header.Get("Authorization")
	if err := json.Unmarshal([]byte(r.FormValue(FieldMetadata)), &chunk.metadata); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for field, files := range r.MultipartForm.File {
		switch {
		case field == FieldSpreadsheet:
			chunk.sheet = files[0].Filename
		case strings.HasPrefix(field, DocumentPrefix):
			chunk.documents = append(chunk.documents, strings.TrimPrefix(field, DocumentPrefix))
		}
	}

	f.mu.Lock()
	f.chunks = append(f.chunks, chunk)
	n := len(f.chunks)
	f.mu.Unlock()

	status, body := http.StatusOK, `{"status":"ok"}`
	if f.reply != nil {
		status, body = f.reply(n)
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newBatch(n int, withSheet bool) domain.Batch {
	b := domain.Batch{
		ID: "batch_20240301_120000",
		Metadata: domain.BatchMetadata{
			BatchID:   "batch_20240301_120000",
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Owners:    []domain.OwnerSummary{{Key: "X", Name: "Owner X"}},
		},
	}
	if withSheet {
		b.Spreadsheet = &domain.Attachment{Filename: "data.xlsx", Content: []byte("sheet")}
	}
	for i := 0; i < n; i++ {
		b.Documents = append(b.Documents, domain.BatchDocument{
			Name:       fmt.Sprintf("X_d%02d", i),
			Owner:      "X",
			DocumentID: fmt.Sprintf("d%02d", i),
			Content:    []byte("pdf"),
		})
	}
	return b
}

func newTestUploader(t *testing.T, url string, chunkSize int) *Uploader {
	t.Helper()
	u, err := NewUploader(Config{URL: url, Authorization: "Bearer token", ChunkSize: chunkSize}, logger.Discard(), nil)
	require.NoError(t, err)
	return u
}

func TestNewUploader_RequiresURL(t *testing.T) {
	_, err := NewUploader(Config{}, logger.Discard(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSend_SingleRequest(t *testing.T) {
	endpoint := &fakeEndpoint{}
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	result, err := newTestUploader(t, srv.URL, 10).Send(context.Background(), newBatch(10, true))
	require.NoError(t, err)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, map[string]any{"status": "ok"}, result.Parts[0].Body)

	require.Len(t, endpoint.chunks, 1)
	chunk := endpoint.chunks[0]
	assert.Equal(t, "Bearer token", chunk.auth)
	assert.Equal(t, "data.xlsx", chunk.sheet)
	assert.Len(t, chunk.documents, 10)
	assert.Equal(t, "batch_20240301_120000", chunk.metadata.BatchID)
	require.NotNil(t, chunk.metadata.BatchInfo)
	assert.Equal(t, domain.BatchInfo{Current: 1, Total: 1}, *chunk.metadata.BatchInfo)
}

func TestSend_Chunked(t *testing.T) {
	endpoint := &fakeEndpoint{}
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	result, err := newTestUploader(t, srv.URL, 10).Send(context.Background(), newBatch(23, true))
	require.NoError(t, err)
	assert.Len(t, result.Parts, 3)

	require.Len(t, endpoint.chunks, 3)
	sizes := []int{}
	for i, chunk := range endpoint.chunks {
		sizes = append(sizes, len(chunk.documents))
		require.NotNil(t, chunk.metadata.BatchInfo)
		assert.Equal(t, domain.BatchInfo{Current: i + 1, Total: 3}, *chunk.metadata.BatchInfo)
		if i == 0 {
			assert.Equal(t, "data.xlsx", chunk.sheet)
		} else {
			assert.Empty(t, chunk.sheet, "chunk %d", i+1)
		}
	}
	assert.Equal(t, []int{10, 10, 3}, sizes)
}

func TestSend_ChunkCount(t *testing.T) {
	tests := []struct {
		docs, size, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{20, 10, 2},
		{21, 5, 5},
	}
	for _, tt := range tests {
		chunks := splitDocuments(newBatch(tt.docs, false).Documents, tt.size)
		assert.Len(t, chunks, tt.want, "%d docs / %d", tt.docs, tt.size)
	}
}

func TestSend_AbortsOnFailure(t *testing.T) {
	endpoint := &fakeEndpoint{reply: func(n int) (int, string) {
		if n == 2 {
			return http.StatusBadGateway, "upstream down"
		}
		return http.StatusOK, `{"status":"ok"}`
	}}
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	result, err := newTestUploader(t, srv.URL, 10).Send(context.Background(), newBatch(23, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.False(t, domain.IsTransient(err))

	var uerr *domain.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 2, uerr.Chunk)
	assert.Equal(t, 3, uerr.Total)
	assert.Equal(t, http.StatusBadGateway, uerr.StatusCode)
	assert.Equal(t, "upstream down", uerr.Body)

	// Third chunk never sent
	assert.Len(t, endpoint.chunks, 2)
	assert.Len(t, result.Parts, 1)
}

func TestSend_NonJSONSuccess(t *testing.T) {
	endpoint := &fakeEndpoint{reply: func(int) (int, string) {
		return http.StatusAccepted, "queued"
	}}
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	result, err := newTestUploader(t, srv.URL, 10).Send(context.Background(), newBatch(1, false))
	require.NoError(t, err)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, http.StatusAccepted, result.Parts[0].StatusCode)
	assert.Equal(t, map[string]any{"status": "success", "data": "queued"}, result.Parts[0].Body)
}

func TestSend_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestUploader(t, url, 10).Send(context.Background(), newBatch(1, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.True(t, domain.IsTransient(err))
}

func TestSend_CancelDoesNotAbortStartedSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	endpoint := &fakeEndpoint{reply: func(n int) (int, string) {
		if n == 1 {
			cancel()
			<-release
		}
		return http.StatusOK, `{"status":"ok"}`
	}}
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	go func() {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	result, err := newTestUploader(t, srv.URL, 10).Send(ctx, newBatch(15, false))
	require.NoError(t, err)
	assert.Len(t, result.Parts, 2)
	assert.Len(t, endpoint.chunks, 2)
}

func TestSend_LocalFailureIsNotTransient(t *testing.T) {
	// The port does not parse, so the request is never built.
	u := newTestUploader(t, "http://[::1]:namedport", 10)

	_, err := u.Send(context.Background(), newBatch(1, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.False(t, domain.IsTransient(err))

	var uerr *domain.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Zero(t, uerr.StatusCode)
	assert.Contains(t, uerr.Error(), "create request")
}

func TestSend_ErrorBodyIsTruncated(t *testing.T) {
	long := strings.Repeat("é", maxErrorBody)
	endpoint := &fakeEndpoint{reply: func(int) (int, string) {
		return http.StatusInternalServerError, long
	}}
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	_, err := newTestUploader(t, srv.URL, 10).Send(context.Background(), newBatch(1, false))
	var uerr *domain.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.LessOrEqual(t, len(uerr.Body), maxErrorBody)
	assert.True(t, utf8.ValidString(uerr.Body))
	assert.True(t, strings.HasPrefix(long, uerr.Body))
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"object", `{"id":"42"}`, map[string]any{"id": "42"}},
		{"array", `[1,2]`, []any{float64(1), float64(2)}},
		{"string", `"queued"`, "queued"},
		{"text", `queued`, map[string]any{"status": "success", "data": "queued"}},
		{"empty", ``, map[string]any{"status": "success", "data": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeBody([]byte(tt.raw)))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; cutting at 3 would split the second one.
	assert.Equal(t, "é", truncate("éé", 3))
	assert.Equal(t, "", truncate("é", 1))
}
