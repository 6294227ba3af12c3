package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// Ensure Ledger implements the interface.
var _ driven.Ledger = (*Ledger)(nil)

// Ledger is an in-memory implementation of driven.Ledger.
// Its content does not survive the process.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]map[string]domain.LedgerEntry
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]map[string]domain.LedgerEntry),
	}
}

// Get returns every id recorded for the owner.
func (l *Ledger) Get(_ context.Context, owner string) (domain.IDSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make(domain.IDSet, len(l.entries[owner]))
	for id := range l.entries[owner] {
		ids.Add(id)
	}
	return ids, nil
}

// Put records an entry. An existing (owner, id) pair is left untouched.
func (l *Ledger) Put(_ context.Context, entry domain.LedgerEntry) error {
	if entry.Owner == "" || entry.DocumentID == "" {
		return domain.ErrInvalidInput
	}
	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	byID, ok := l.entries[entry.Owner]
	if !ok {
		byID = make(map[string]domain.LedgerEntry)
		l.entries[entry.Owner] = byID
	}
	if _, exists := byID[entry.DocumentID]; !exists {
		byID[entry.DocumentID] = entry
	}
	return nil
}

// Scan returns every entry ordered by owner then document id.
func (l *Ledger) Scan(_ context.Context) ([]domain.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]domain.LedgerEntry, 0)
	for _, byID := range l.entries {
		for _, entry := range byID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Owner != result[j].Owner {
			return result[i].Owner < result[j].Owner
		}
		return result[i].DocumentID < result[j].DocumentID
	})
	return result, nil
}
