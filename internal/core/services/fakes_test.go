package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/deltasync/internal/adapters/driven/checkpoint"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/partition"
	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/logger"
)

// fakeSource implements driven.DocumentSource over in-memory documents.
type fakeSource struct {
	mu        sync.Mutex
	owners    []domain.Owner
	docs      map[string][]domain.DocumentRef
	listErr   map[string]error
	ownersErr error
	listCalls int
	downloads int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		docs:    make(map[string][]domain.DocumentRef),
		listErr: make(map[string]error),
	}
}

func (f *fakeSource) addOwner(key string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, domain.Owner{Key: key, Name: "Owner " + key})
	for _, id := range ids {
		f.docs[key] = append(f.docs[key], domain.DocumentRef{ID: id, SourceDate: "01/03/2024"})
	}
}

func (f *fakeSource) addDocument(owner string, ref domain.DocumentRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[owner] = append(f.docs[owner], ref)
}

func (f *fakeSource) ListOwners(_ context.Context) ([]domain.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ownersErr != nil {
		return nil, f.ownersErr
	}
	return append([]domain.Owner(nil), f.owners...), nil
}

func (f *fakeSource) ListDocuments(_ context.Context, owner domain.Owner) ([]domain.DocumentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err := f.listErr[owner.Key]; err != nil {
		return nil, err
	}
	return append([]domain.DocumentRef(nil), f.docs[owner.Key]...), nil
}

func (f *fakeSource) Download(_ context.Context, owner domain.Owner, ref domain.DocumentRef) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	return []byte("%PDF " + owner.Key + "/" + ref.ID), nil
}

func (f *fakeSource) counts() (lists, downloads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.downloads
}

// fakeUploader implements driven.BatchUploader and records sent batches.
type fakeUploader struct {
	mu       sync.Mutex
	calls    int
	failNext int
	sent     []domain.Batch
}

func (f *fakeUploader) Send(_ context.Context, batch domain.Batch) (*domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	result := &domain.SendResult{BatchID: batch.ID}
	if f.failNext > 0 {
		f.failNext--
		return result, &domain.UploadError{BatchID: batch.ID, Chunk: 1, Total: 1, StatusCode: 502, Body: "bad gateway"}
	}
	f.sent = append(f.sent, batch)
	result.Parts = []domain.UploadResponse{{StatusCode: 200, Body: map[string]any{"status": "success"}}}
	return result, nil
}

func (f *fakeUploader) lastBatch(t *testing.T) domain.Batch {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// fakeNotifier implements driven.Notifier.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

// failingLedger implements driven.Ledger with a backend that is down.
type failingLedger struct{}

func (failingLedger) err(op string) error {
	return &domain.BackendUnavailableError{Backend: "dynamodb", Op: op, Err: errors.New("connection refused")}
}

func (l failingLedger) Get(_ context.Context, _ string) (domain.IDSet, error) {
	return nil, l.err("get")
}

func (l failingLedger) Put(_ context.Context, _ domain.LedgerEntry) error {
	return l.err("put")
}

func (l failingLedger) Scan(_ context.Context) ([]domain.LedgerEntry, error) {
	return nil, l.err("scan")
}

// Ensure fakes implement interfaces
var _ driven.DocumentSource = (*fakeSource)(nil)
var _ driven.BatchUploader = (*fakeUploader)(nil)
var _ driven.Notifier = (*fakeNotifier)(nil)
var _ driven.Ledger = failingLedger{}

// harness wires a pipeline over real stores in a temp directory.
type harness struct {
	source      *fakeSource
	ledger      driven.Ledger
	partitions  *partition.Store
	checkpoints *checkpoint.Store
	uploader    *fakeUploader
	notifier    *fakeNotifier
	runs        *memory.RunStore
	classifier  *Classifier
	collector   *Collector
	pipeline    *Pipeline
	clock       time.Time
}

func newHarness(t *testing.T, ledger driven.Ledger, cfg PipelineConfig) *harness {
	t.Helper()
	root := t.TempDir()
	log := logger.Discard()

	parts, err := partition.New(partition.Config{
		BaseDir:  filepath.Join(root, "data"),
		DeltaDir: filepath.Join(root, "delta"),
	}, log, nil)
	require.NoError(t, err)
	ckpts, err := checkpoint.New(checkpoint.Config{Dir: filepath.Join(root, "checkpoints")}, log, nil)
	require.NoError(t, err)

	h := &harness{
		source:      newFakeSource(),
		ledger:      ledger,
		partitions:  parts,
		checkpoints: ckpts,
		uploader:    &fakeUploader{},
		notifier:    &fakeNotifier{},
		runs:        memory.NewRunStore(),
		clock:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.classifier = NewClassifier(ledger, log, nil)
	h.collector = NewCollector(h.source, h.classifier, parts, CollectorConfig{Workers: 2}, log, nil)
	h.pipeline = NewPipeline(PipelineDeps{
		Collector:   h.collector,
		Classifier:  h.classifier,
		Partitions:  parts,
		Checkpoints: ckpts,
		Uploader:    h.uploader,
		Notifier:    h.notifier,
		Runs:        h.runs,
	}, cfg, log, nil)
	h.pipeline.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func (h *harness) partitionOf(t *testing.T, owner, id string) domain.Partition {
	t.Helper()
	_, rec, err := h.partitions.Read(context.Background(), owner, id)
	require.NoError(t, err)
	return rec.Partition
}

func (h *harness) liveCheckpoints(t *testing.T) []domain.CheckpointInfo {
	t.Helper()
	infos, err := h.checkpoints.List(context.Background())
	require.NoError(t, err)
	return infos
}
