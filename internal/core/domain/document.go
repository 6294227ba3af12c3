package domain

import (
	"sort"
	"time"
)

// Owner is the business entity documents belong to.
type Owner struct {
	// Key is the stable business identifier (e.g. a company registration number).
	Key string

	// Name is a human-readable label, used in batch metadata only.
	Name string
}

// DocumentRef is a document as listed by a source, before download.
type DocumentRef struct {
	// ID is unique within an owner.
	ID string

	// SourceDate is the date the source attaches to the document, verbatim.
	// It may be empty or unparsable.
	SourceDate string
}

// Novelty is the outcome of consulting the ledger for a document id.
type Novelty int

const (
	// NoveltyNew means the id has not been recorded for the owner.
	NoveltyNew Novelty = iota
	// NoveltyKnown means the id was recorded by a prior run.
	NoveltyKnown
)

func (n Novelty) String() string {
	if n == NoveltyKnown {
		return "known"
	}
	return "new"
}

// Partition is the local area a document lives in.
type Partition string

const (
	// PartitionDelta holds documents not yet confirmed by a completed cycle.
	PartitionDelta Partition = "delta"
	// PartitionBase holds documents confirmed by a previously completed cycle.
	PartitionBase Partition = "base"
)

// DocumentRecord is a document and its physical placement.
// A given (Owner, ID) is stored in at most one partition at any time.
type DocumentRecord struct {
	ID          string
	Owner       string
	Partition   Partition
	StoragePath string
	SourceDate  string
}

// IsDelta reports whether the record belongs in the delta area.
func (r DocumentRecord) IsDelta() bool {
	return r.Partition == PartitionDelta
}

// ReconcileReport summarises a reconciliation pass over one owner.
type ReconcileReport struct {
	Owner string

	// Records holds the resulting classification of every processed document.
	Records []DocumentRecord

	// Moves counts physical relocations performed by the pass.
	Moves int

	// Skipped lists document ids left untouched (e.g. unparsable dates).
	Skipped []string
}

// IDSet is a set of document ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LedgerEntry records that a document id is known for an owner.
type LedgerEntry struct {
	Owner      string
	DocumentID string

	// DownloadedAt is when the document was first persisted.
	DownloadedAt time.Time

	// Tags holds arbitrary metadata attached at mark time.
	Tags map[string]string
}

// OwnerClassification is the novelty of every listed id of one owner.
type OwnerClassification struct {
	Owner string
	New   []string
	Known []string

	// Degraded is set when the ledger could not be read. Every id is then NEW.
	Degraded bool
	Err      error
}
