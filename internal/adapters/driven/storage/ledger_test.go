package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

type failingLedger struct{ err error }

func (f failingLedger) Get(context.Context, string) (domain.IDSet, error) {
	return nil, f.err
}

func (f failingLedger) Put(context.Context, domain.LedgerEntry) error {
	return f.err
}

func (f failingLedger) Scan(context.Context) ([]domain.LedgerEntry, error) {
	return nil, f.err
}

func TestLazyLedger_DefersConstruction(t *testing.T) {
	calls := 0
	ledger := NewLazyLedger("memory", func(context.Context) (driven.Ledger, error) {
		calls++
		return memory.NewLedger(), nil
	})
	assert.Equal(t, 0, calls)

	ctx := context.Background()
	require.NoError(t, ledger.Put(ctx, domain.LedgerEntry{Owner: "X", DocumentID: "d1"}))
	ids, err := ledger.Get(ctx, "X")
	require.NoError(t, err)
	assert.True(t, ids.Has("d1"))
	assert.Equal(t, 1, calls)
}

func TestLazyLedger_OpenFailureRetried(t *testing.T) {
	calls := 0
	ledger := NewLazyLedger("dynamodb", func(context.Context) (driven.Ledger, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("no credentials")
		}
		return memory.NewLedger(), nil
	})

	ctx := context.Background()
	_, err := ledger.Get(ctx, "X")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	var typed *domain.BackendUnavailableError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "open", typed.Op)

	_, err = ledger.Get(ctx, "X")
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLazyLedger_WrapsAccessErrors(t *testing.T) {
	ledger := NewLazyLedger("sqlite", func(context.Context) (driven.Ledger, error) {
		return failingLedger{err: errors.New("database is locked")}, nil
	})

	_, err := ledger.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestLazyLedger_InvalidInputPassesThrough(t *testing.T) {
	ledger := NewLazyLedger("memory", func(context.Context) (driven.Ledger, error) {
		return memory.NewLedger(), nil
	})

	err := ledger.Put(context.Background(), domain.LedgerEntry{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NotErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestNewLedger_Backends(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite", "dynamodb"} {
		l, err := NewLedger(LedgerOptions{Backend: backend})
		require.NoError(t, err, backend)
		assert.Equal(t, backend, l.Backend())
	}

	_, err := NewLedger(LedgerOptions{Backend: "redis"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewLedger_SQLiteOpensLazily(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger", "deltasync.db")
	l, err := NewLedger(LedgerOptions{Backend: "sqlite", SQLitePath: dbPath})
	require.NoError(t, err)

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))

	ctx := context.Background()
	require.NoError(t, l.Put(ctx, domain.LedgerEntry{Owner: "X", DocumentID: "d1"}))
	require.NoError(t, l.Close())

	_, statErr = os.Stat(dbPath)
	assert.NoError(t, statErr)
}

func TestNewLedger_SQLiteBadPath(t *testing.T) {
	l, err := NewLedger(LedgerOptions{Backend: "sqlite"})
	require.NoError(t, err)

	_, err = l.Get(context.Background(), "X")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}
