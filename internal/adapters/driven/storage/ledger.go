// Package storage selects and wraps the ledger backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/dynamodb"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// LedgerFactory opens a ledger backend.
type LedgerFactory func(ctx context.Context) (driven.Ledger, error)

// Ensure LazyLedger implements the interface.
var _ driven.Ledger = (*LazyLedger)(nil)

// LazyLedger defers opening its backend until the first access.
// A failed open is reported as *domain.BackendUnavailableError and retried
// on the next access.
type LazyLedger struct {
	name    string
	factory LedgerFactory

	mu      sync.Mutex
	backend driven.Ledger
}

// NewLazyLedger wraps factory. Name identifies the backend in errors.
func NewLazyLedger(name string, factory LedgerFactory) *LazyLedger {
	return &LazyLedger{name: name, factory: factory}
}

// Backend returns the backend name.
func (l *LazyLedger) Backend() string {
	return l.name
}

func (l *LazyLedger) open(ctx context.Context) (driven.Ledger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend != nil {
		return l.backend, nil
	}
	backend, err := l.factory(ctx)
	if err != nil {
		return nil, &domain.BackendUnavailableError{Backend: l.name, Op: "open", Err: err}
	}
	l.backend = backend
	return backend, nil
}

// Get implements driven.Ledger.
func (l *LazyLedger) Get(ctx context.Context, owner string) (domain.IDSet, error) {
	backend, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := backend.Get(ctx, owner)
	if err != nil {
		return nil, l.wrap("get", err)
	}
	return ids, nil
}

// Put implements driven.Ledger.
func (l *LazyLedger) Put(ctx context.Context, entry domain.LedgerEntry) error {
	backend, err := l.open(ctx)
	if err != nil {
		return err
	}
	if err := backend.Put(ctx, entry); err != nil {
		return l.wrap("put", err)
	}
	return nil
}

// Scan implements driven.Ledger.
func (l *LazyLedger) Scan(ctx context.Context) ([]domain.LedgerEntry, error) {
	backend, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := backend.Scan(ctx)
	if err != nil {
		return nil, l.wrap("scan", err)
	}
	return entries, nil
}

// Close releases the backend if it was opened and holds resources.
func (l *LazyLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.backend.(io.Closer); ok {
		l.backend = nil
		return c.Close()
	}
	return nil
}

// wrap reports access failures as backend unavailability.
// Invalid input and already-typed errors pass through.
func (l *LazyLedger) wrap(op string, err error) error {
	if errors.Is(err, domain.ErrBackendUnavailable) || errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	return &domain.BackendUnavailableError{Backend: l.name, Op: op, Err: err}
}

// LedgerOptions selects and configures a backend.
type LedgerOptions struct {
	// Backend is "memory", "sqlite" or "dynamodb".
	Backend    string
	SQLitePath string
	DynamoDB   dynamodb.Config
}

// NewLedger returns a lazily opened ledger for the selected backend.
func NewLedger(opts LedgerOptions) (*LazyLedger, error) {
	var factory LedgerFactory
	switch opts.Backend {
	case "memory":
		factory = func(context.Context) (driven.Ledger, error) {
			return memory.NewLedger(), nil
		}
	case "sqlite":
		factory = func(context.Context) (driven.Ledger, error) {
			store, err := sqlite.NewStore(opts.SQLitePath)
			if err != nil {
				return nil, err
			}
			return store.Ledger(), nil
		}
	case "dynamodb":
		factory = func(ctx context.Context) (driven.Ledger, error) {
			return dynamodb.New(ctx, opts.DynamoDB)
		}
	default:
		return nil, fmt.Errorf("ledger backend %q: %w", opts.Backend, domain.ErrInvalidInput)
	}
	return NewLazyLedger(opts.Backend, factory), nil
}
