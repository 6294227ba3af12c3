package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/core/ports/driving"
	"github.com/custodia-labs/deltasync/internal/metrics"
)

// Ensure Classifier implements the interface.
var _ driving.LedgerService = (*Classifier)(nil)

// Classifier decides whether documents are new by consulting the ledger.
// A ledger that cannot be read never stops a run: its documents are
// classified NEW and the owner is flagged as degraded.
type Classifier struct {
	ledger  driven.Ledger
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewClassifier creates a classifier over a ledger.
func NewClassifier(ledger driven.Ledger, log logrus.FieldLogger, m *metrics.Metrics) *Classifier {
	return &Classifier{
		ledger:  ledger,
		log:     log.WithField("component", "classifier"),
		metrics: m,
		now:     time.Now,
	}
}

// Classify returns the novelty of a single document.
func (c *Classifier) Classify(ctx context.Context, owner, id string) domain.Novelty {
	cls := c.ClassifyOwner(ctx, owner, []string{id})
	if len(cls.Known) == 1 {
		return domain.NoveltyKnown
	}
	return domain.NoveltyNew
}

// ClassifyOwner classifies ids with a single ledger read.
func (c *Classifier) ClassifyOwner(ctx context.Context, owner string, ids []string) domain.OwnerClassification {
	cls := domain.OwnerClassification{Owner: owner}

	known, err := c.ledger.Get(ctx, owner)
	if err != nil {
		c.log.WithError(err).WithField("owner", owner).Warn("Ledger unavailable, treating every document as new")
		c.metrics.Degraded()
		cls.Degraded = true
		cls.Err = err
		known = nil
	}

	for _, id := range ids {
		if known.Has(id) {
			cls.Known = append(cls.Known, id)
			c.metrics.Classified(domain.NoveltyKnown.String())
			continue
		}
		cls.New = append(cls.New, id)
		c.metrics.Classified(domain.NoveltyNew.String())
	}

	c.log.WithFields(logrus.Fields{
		"owner": owner,
		"new":   len(cls.New),
		"known": len(cls.Known),
	}).Debug("Owner classified")
	return cls
}

// MarkKnown records a document in the ledger. Marking twice is a no-op.
func (c *Classifier) MarkKnown(ctx context.Context, owner, id string, tags map[string]string) error {
	if owner == "" || id == "" {
		return fmt.Errorf("owner and document id are required: %w", domain.ErrInvalidInput)
	}
	err := c.ledger.Put(ctx, domain.LedgerEntry{
		Owner:        owner,
		DocumentID:   id,
		DownloadedAt: c.now().UTC(),
		Tags:         tags,
	})
	if err != nil {
		return fmt.Errorf("mark %s/%s known: %w", owner, id, err)
	}
	return nil
}

// Known returns the ids recorded for an owner.
func (c *Classifier) Known(ctx context.Context, owner string) (domain.IDSet, error) {
	ids, err := c.ledger.Get(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return ids, nil
}

// Entries returns every ledger entry.
func (c *Classifier) Entries(ctx context.Context) ([]domain.LedgerEntry, error) {
	entries, err := c.ledger.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return entries, nil
}
