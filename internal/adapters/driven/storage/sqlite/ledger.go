package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// Ledger implements driven.Ledger on the ledger_entries table.
type Ledger struct {
	store *Store
}

var _ driven.Ledger = (*Ledger)(nil)

// Close closes the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// Get returns every id recorded for the owner.
func (l *Ledger) Get(ctx context.Context, owner string) (domain.IDSet, error) {
	rows, err := l.store.db.QueryContext(ctx,
		"SELECT document_id FROM ledger_entries WHERE owner = ?", owner)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	ids := domain.NewIDSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning ledger id: %w", err)
		}
		ids.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger: %w", err)
	}
	return ids, nil
}

// Put records an entry. An existing (owner, id) pair is left untouched.
func (l *Ledger) Put(ctx context.Context, entry domain.LedgerEntry) error {
	if entry.Owner == "" || entry.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	downloadedAt := entry.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now()
	}

	var tags any
	if len(entry.Tags) > 0 {
		data, err := json.Marshal(entry.Tags)
		if err != nil {
			return fmt.Errorf("marshalling tags: %w", err)
		}
		tags = string(data)
	}

	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (owner, document_id, downloaded_at, tags)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, document_id) DO NOTHING
	`, entry.Owner, entry.DocumentID, downloadedAt.UTC().Format(time.RFC3339Nano), tags)
	if err != nil {
		return fmt.Errorf("saving ledger entry: %w", err)
	}
	return nil
}

// Scan returns every entry ordered by owner then document id.
func (l *Ledger) Scan(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT owner, document_id, downloaded_at, tags
		FROM ledger_entries
		ORDER BY owner, document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var entry domain.LedgerEntry
		var downloadedAt string
		var tags sql.NullString
		if err := rows.Scan(&entry.Owner, &entry.DocumentID, &downloadedAt, &tags); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, downloadedAt); err == nil {
			entry.DownloadedAt = t
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &entry.Tags); err != nil {
				return nil, fmt.Errorf("unmarshalling tags: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger: %w", err)
	}
	return entries, nil
}
