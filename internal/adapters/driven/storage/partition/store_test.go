package partition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(Config{
		BaseDir:  filepath.Join(root, "data"),
		DeltaDir: filepath.Join(root, "delta"),
	}, logger.Discard(), nil)
	require.NoError(t, err)
	return s
}

func place(t *testing.T, s *Store, owner, id string, p domain.Partition, date string) {
	t.Helper()
	_, err := s.Place(context.Background(), domain.DocumentRecord{
		ID: id, Owner: owner, Partition: p, SourceDate: date,
	}, []byte("content of "+id))
	require.NoError(t, err)
}

func partitionOf(t *testing.T, s *Store, owner, id string) domain.Partition {
	t.Helper()
	_, rec, err := s.Read(context.Background(), owner, id)
	if errors.Is(err, domain.ErrNotFound) {
		return ""
	}
	require.NoError(t, err)
	return rec.Partition
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Config{BaseDir: dir}, logger.Discard(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(Config{BaseDir: dir, DeltaDir: dir + "/"}, logger.Discard(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPlace_DeltaWritesMarker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Place(ctx, domain.DocumentRecord{
		ID: "d1", Owner: "X", Partition: domain.PartitionDelta, SourceDate: "01/03/2024",
	}, []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.deltaDir, "X", "d1.pdf"), rec.StoragePath)
	assert.FileExists(t, rec.StoragePath+markerSuffix)

	content, read, err := s.Read(ctx, "X", "d1")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), content)
	assert.Equal(t, domain.PartitionDelta, read.Partition)
	assert.Equal(t, "01/03/2024", read.SourceDate)
}

func TestPlace_Exclusivity(t *testing.T) {
	s := newTestStore(t)

	place(t, s, "X", "d1", domain.PartitionDelta, "")
	place(t, s, "X", "d1", domain.PartitionBase, "")

	assert.NoFileExists(t, s.path(domain.PartitionDelta, "X", "d1"))
	assert.NoFileExists(t, s.markerPath("X", "d1"))
	assert.FileExists(t, s.path(domain.PartitionBase, "X", "d1"))

	place(t, s, "X", "d1", domain.PartitionDelta, "")
	assert.NoFileExists(t, s.path(domain.PartitionBase, "X", "d1"))
	assert.Equal(t, domain.PartitionDelta, partitionOf(t, s, "X", "d1"))
}

func TestPlace_DefaultsToDelta(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Place(context.Background(), domain.DocumentRecord{ID: "d1", Owner: "X"}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionDelta, rec.Partition)
}

func TestPlace_RejectsPathElements(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := s.Place(context.Background(), domain.DocumentRecord{ID: id, Owner: "X"}, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, id)
	}
}

func TestRead_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Read(context.Background(), "X", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcileByPresence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	place(t, s, "X", "base-only", domain.PartitionBase, "")
	place(t, s, "X", "delta-only", domain.PartitionDelta, "")
	place(t, s, "X", "both", domain.PartitionBase, "")
	// Simulate a stray delta copy left by an interrupted run
	require.NoError(t, os.WriteFile(s.path(domain.PartitionDelta, "X", "both"), []byte("stale"), 0600))

	report, err := s.ReconcileByPresence(ctx, "X", []string{"base-only", "delta-only", "both", "missing"})
	require.NoError(t, err)
	require.Len(t, report.Records, 4)

	byID := map[string]domain.DocumentRecord{}
	for _, r := range report.Records {
		byID[r.ID] = r
	}
	assert.Equal(t, domain.PartitionBase, byID["base-only"].Partition)
	assert.Equal(t, domain.PartitionDelta, byID["delta-only"].Partition)
	assert.Equal(t, domain.PartitionBase, byID["both"].Partition)
	assert.Equal(t, domain.PartitionDelta, byID["missing"].Partition)
	assert.Empty(t, byID["missing"].StoragePath)

	assert.NoFileExists(t, s.path(domain.PartitionDelta, "X", "both"))
	assert.Zero(t, report.Moves)
}

func TestReconcileByDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reference := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	place(t, s, "X", "old-in-delta", domain.PartitionDelta, "")
	place(t, s, "X", "new-in-base", domain.PartitionBase, "")
	place(t, s, "X", "same-day", domain.PartitionDelta, "")
	place(t, s, "X", "undated", domain.PartitionDelta, "")

	refs := []domain.DocumentRef{
		{ID: "old-in-delta", SourceDate: "15/02/2024"},
		{ID: "new-in-base", SourceDate: "02/03/2024"},
		{ID: "same-day", SourceDate: "01/03/2024"},
		{ID: "undated", SourceDate: "n/a"},
		{ID: "absent", SourceDate: "10/03/2024"},
	}

	report, err := s.ReconcileByDate(ctx, "X", refs, reference)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Moves)
	assert.Equal(t, []string{"undated"}, report.Skipped)

	assert.Equal(t, domain.PartitionBase, partitionOf(t, s, "X", "old-in-delta"))
	assert.NoFileExists(t, s.markerPath("X", "old-in-delta"))
	assert.Equal(t, domain.PartitionDelta, partitionOf(t, s, "X", "new-in-base"))
	assert.FileExists(t, s.markerPath("X", "new-in-base"))
	assert.Equal(t, domain.PartitionBase, partitionOf(t, s, "X", "same-day"))
	assert.Equal(t, domain.PartitionDelta, partitionOf(t, s, "X", "undated"))
	assert.Equal(t, domain.Partition(""), partitionOf(t, s, "X", "absent"))

	var absent domain.DocumentRecord
	for _, r := range report.Records {
		if r.ID == "absent" {
			absent = r
		}
	}
	assert.Equal(t, domain.PartitionDelta, absent.Partition)
	assert.Empty(t, absent.StoragePath)

	// Second pass with the same reference is a no-op
	again, err := s.ReconcileByDate(ctx, "X", refs, reference)
	require.NoError(t, err)
	assert.Zero(t, again.Moves)
}

func TestReconcileByDate_RemovesStrayDeltaCopy(t *testing.T) {
	s := newTestStore(t)
	place(t, s, "X", "old", domain.PartitionBase, "")
	// A base copy with a leftover delta copy and marker from an interrupted run
	require.NoError(t, os.WriteFile(s.path(domain.PartitionDelta, "X", "old"), []byte("stale"), 0600))
	require.NoError(t, os.WriteFile(s.markerPath("X", "old"), []byte("{}"), 0600))

	report, err := s.ReconcileByDate(context.Background(), "X",
		[]domain.DocumentRef{{ID: "old", SourceDate: "01/01/2020"}},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, report.Moves)

	assert.FileExists(t, s.path(domain.PartitionBase, "X", "old"))
	assert.NoFileExists(t, s.path(domain.PartitionDelta, "X", "old"))
	assert.NoFileExists(t, s.markerPath("X", "old"))
	assert.NoDirExists(t, filepath.Join(s.deltaDir, "X"))
}

func TestReconcileByDate_CrossDeviceFallback(t *testing.T) {
	s := newTestStore(t)
	s.rename = func(string, string) error {
		return &os.LinkError{Op: "rename", Err: errors.New("invalid cross-device link")}
	}
	place(t, s, "X", "d1", domain.PartitionDelta, "")

	report, err := s.ReconcileByDate(context.Background(), "X",
		[]domain.DocumentRef{{ID: "d1", SourceDate: "2020-01-01"}},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Moves)

	content, rec, err := s.Read(context.Background(), "X", "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionBase, rec.Partition)
	assert.Equal(t, []byte("content of d1"), content)
	assert.NoFileExists(t, s.path(domain.PartitionDelta, "X", "d1"))
}

func TestPromote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	place(t, s, "X", "d1", domain.PartitionDelta, "")
	place(t, s, "X", "d2", domain.PartitionDelta, "")
	place(t, s, "X", "d3", domain.PartitionBase, "")

	report, err := s.Promote(ctx, "X", []string{"d1", "d2", "d3", "gone"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Moves)
	assert.Equal(t, []string{"gone"}, report.Skipped)

	for _, id := range []string{"d1", "d2", "d3"} {
		assert.Equal(t, domain.PartitionBase, partitionOf(t, s, "X", id), id)
	}

	// The owner's delta dir is pruned, the delta root survives
	assert.NoDirExists(t, filepath.Join(s.deltaDir, "X"))
	assert.DirExists(t, s.deltaDir)
}

func TestPrune_KeepsNonEmptyAndBase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	place(t, s, "X", "d1", domain.PartitionDelta, "")
	place(t, s, "Y", "d1", domain.PartitionDelta, "")
	require.NoError(t, os.MkdirAll(filepath.Join(s.deltaDir, "Z", "nested", "deeper"), 0750))
	require.NoError(t, os.MkdirAll(filepath.Join(s.baseDir, "empty-owner"), 0750))

	_, err := s.Promote(ctx, "X", []string{"d1"})
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(s.deltaDir, "X"))
	assert.NoDirExists(t, filepath.Join(s.deltaDir, "Z"))
	assert.DirExists(t, filepath.Join(s.deltaDir, "Y"))
	assert.DirExists(t, filepath.Join(s.baseDir, "empty-owner"))
}

func TestList(t *testing.T) {
	s := newTestStore(t)

	place(t, s, "X", "b", domain.PartitionBase, "")
	place(t, s, "X", "a", domain.PartitionDelta, "")

	records, err := s.List(context.Background(), "X")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, domain.PartitionDelta, records[0].Partition)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, domain.PartitionBase, records[1].Partition)

	empty, err := s.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
