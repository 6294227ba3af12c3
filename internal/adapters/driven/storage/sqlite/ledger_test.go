package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

func TestLedger_GetUnknownOwner(t *testing.T) {
	ledger := setupTestStore(t).Ledger()

	ids, err := ledger.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLedger_PutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := setupTestStore(t).Ledger()

	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, ledger.Put(ctx, domain.LedgerEntry{
		Owner: "X", DocumentID: "d1", DownloadedAt: first, Tags: map[string]string{"kind": "pdf"},
	}))
	require.NoError(t, ledger.Put(ctx, domain.LedgerEntry{
		Owner: "X", DocumentID: "d1", DownloadedAt: first.Add(time.Hour),
	}))

	ids, err := ledger.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids.Sorted())

	entries, err := ledger.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, first.Equal(entries[0].DownloadedAt))
	assert.Equal(t, map[string]string{"kind": "pdf"}, entries[0].Tags)
}

func TestLedger_Scan(t *testing.T) {
	ctx := context.Background()
	ledger := setupTestStore(t).Ledger()

	for _, e := range []domain.LedgerEntry{
		{Owner: "Y", DocumentID: "d3"},
		{Owner: "X", DocumentID: "d2"},
		{Owner: "X", DocumentID: "d1"},
	} {
		require.NoError(t, ledger.Put(ctx, e))
	}

	entries, err := ledger.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "X", entries[0].Owner)
	assert.Equal(t, "d1", entries[0].DocumentID)
	assert.Equal(t, "Y", entries[2].Owner)
	assert.False(t, entries[2].DownloadedAt.IsZero())
	assert.Nil(t, entries[2].Tags)
}

func TestLedger_PutInvalid(t *testing.T) {
	ledger := setupTestStore(t).Ledger()

	err := ledger.Put(context.Background(), domain.LedgerEntry{Owner: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLedger_ConcurrentPut(t *testing.T) {
	ctx := context.Background()
	ledger := setupTestStore(t).Ledger()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ledger.Put(ctx, domain.LedgerEntry{Owner: "X", DocumentID: "same"}))
		}()
	}
	wg.Wait()

	ids, err := ledger.Get(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestLedger_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "deltasync.db")

	store, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Ledger().Put(ctx, domain.LedgerEntry{Owner: "X", DocumentID: "d1"}))
	require.NoError(t, store.Close())

	store, err = NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ids, err := store.Ledger().Get(ctx, "X")
	require.NoError(t, err)
	assert.True(t, ids.Has("d1"))
}
