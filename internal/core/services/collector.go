package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/metrics"
)

// DefaultWorkers is the number of owners collected in parallel.
const DefaultWorkers = 4

// CollectorConfig bounds the load put on the document source.
type CollectorConfig struct {
	// Workers is the number of owners collected in parallel (default: 4).
	Workers int

	// RateLimit is the number of source requests per second. Zero disables limiting.
	RateLimit float64

	// RateBurst is the limiter burst (default: 1).
	RateBurst int
}

// Collector fetches, classifies and places the documents of every owner.
type Collector struct {
	source     driven.DocumentSource
	classifier *Classifier
	partitions driven.PartitionStore
	workers    int
	limiter    *rate.Limiter
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

// NewCollector creates a collector.
func NewCollector(
	source driven.DocumentSource,
	classifier *Classifier,
	partitions driven.PartitionStore,
	cfg CollectorConfig,
	log logrus.FieldLogger,
	m *metrics.Metrics,
) *Collector {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Collector{
		source:     source,
		classifier: classifier,
		partitions: partitions,
		workers:    workers,
		limiter:    limiter,
		log:        log.WithField("component", "collector"),
		metrics:    m,
	}
}

// Owners lists the owners to process. A positive limit keeps the first ones.
func (c *Collector) Owners(ctx context.Context, limit int) ([]domain.Owner, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	owners, err := c.source.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	if limit > 0 && len(owners) > limit {
		c.log.WithFields(logrus.Fields{"owners": len(owners), "limit": limit}).Info("Limiting owners")
		owners = owners[:limit]
	}
	return owners, nil
}

// Collect processes owners in parallel. Results keep the order of owners
// and a failing owner never affects the others.
func (c *Collector) Collect(ctx context.Context, owners []domain.Owner, reference *time.Time) []domain.OwnerResult {
	results := make([]domain.OwnerResult, len(owners))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, owner := range owners {
		i, owner := i, owner
		g.Go(func() error {
			results[i] = c.collectOwner(ctx, owner, reference)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Collector) collectOwner(ctx context.Context, owner domain.Owner, reference *time.Time) domain.OwnerResult {
	log := c.log.WithField("owner", owner.Key)
	res := domain.OwnerResult{Owner: owner}
	fail := func(err error) domain.OwnerResult {
		res.Err = err
		c.metrics.OwnerFailed()
		log.WithError(err).Error("Owner collection failed")
		return res
	}

	if err := c.wait(ctx); err != nil {
		return fail(err)
	}
	refs, err := c.source.ListDocuments(ctx, owner)
	if err != nil {
		return fail(fmt.Errorf("list documents: %w", err))
	}

	byID := make(map[string]domain.DocumentRef, len(refs))
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref
		ids = append(ids, ref.ID)
	}

	cls := c.classifier.ClassifyOwner(ctx, owner.Key, ids)
	res.NewCount = len(cls.New)
	res.Degraded = cls.Degraded

	fetch := append([]string(nil), cls.New...)
	if len(cls.Known) > 0 {
		report, err := c.partitions.ReconcileByPresence(ctx, owner.Key, cls.Known)
		if err != nil {
			return fail(fmt.Errorf("reconcile by presence: %w", err))
		}
		for _, rec := range report.Records {
			// Known to the ledger but found nowhere on disk.
			if rec.StoragePath == "" {
				fetch = append(fetch, rec.ID)
			}
		}
	}

	for _, id := range fetch {
		ref := byID[id]
		if err := c.wait(ctx); err != nil {
			return fail(err)
		}
		content, err := c.source.Download(ctx, owner, ref)
		if err != nil {
			return fail(fmt.Errorf("download %s: %w", id, err))
		}
		record := domain.DocumentRecord{
			ID:         id,
			Owner:      owner.Key,
			Partition:  domain.PartitionDelta,
			SourceDate: ref.SourceDate,
		}
		if _, err := c.partitions.Place(ctx, record, content); err != nil {
			return fail(fmt.Errorf("place %s: %w", id, err))
		}
		tags := map[string]string{"delta": "true"}
		if ref.SourceDate != "" {
			tags["source_date"] = ref.SourceDate
		}
		if err := c.classifier.MarkKnown(ctx, owner.Key, id, tags); err != nil {
			log.WithError(err).WithField("document", id).Warn("Failed to record document in ledger")
		}
		res.Fetched = append(res.Fetched, id)
	}

	if reference != nil {
		report, err := c.partitions.ReconcileByDate(ctx, owner.Key, refs, *reference)
		if err != nil {
			return fail(fmt.Errorf("reconcile by date: %w", err))
		}
		if len(report.Skipped) > 0 {
			log.WithField("skipped", report.Skipped).Warn("Documents without a usable date left in place")
		}
	}

	records, err := c.partitions.List(ctx, owner.Key)
	if err != nil {
		return fail(fmt.Errorf("list stored documents: %w", err))
	}
	for _, rec := range records {
		ref, listed := byID[rec.ID]
		if !listed {
			continue
		}
		rec.SourceDate = ref.SourceDate
		res.Records = append(res.Records, rec)
	}

	log.WithFields(logrus.Fields{
		"documents":  len(res.Records),
		"new":        res.NewCount,
		"downloaded": len(fetch),
		"degraded":   res.Degraded,
	}).Info("Owner collected")
	return res
}

func (c *Collector) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

// Documents lists the documents the source currently publishes for an owner.
func (c *Collector) Documents(ctx context.Context, owner domain.Owner) ([]domain.DocumentRef, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	refs, err := c.source.ListDocuments(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list documents of %s: %w", owner.Key, err)
	}
	return refs, nil
}
