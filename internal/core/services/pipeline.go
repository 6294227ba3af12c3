package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/core/ports/driving"
	"github.com/custodia-labs/deltasync/internal/logger"
	"github.com/custodia-labs/deltasync/internal/metrics"
)

// Ensure Pipeline implements the interface.
var _ driving.Pipeline = (*Pipeline)(nil)

// batchIDLayout formats the creation time into batch ids.
const batchIDLayout = "20060102_150405"

// PipelineConfig tunes batch assembly and checkpoint retention.
type PipelineConfig struct {
	// IncludeBase adds documents already confirmed by a prior cycle to the
	// batch. Documents downloaded in the current cycle are always sent.
	IncludeBase bool

	// CheckpointMaxAge is the retention of the sweep run after every cycle.
	// Zero disables the sweep.
	CheckpointMaxAge time.Duration
}

// PipelineDeps are the collaborators of the pipeline. Notifier,
// Spreadsheet and Runs are optional.
type PipelineDeps struct {
	Collector   *Collector
	Classifier  *Classifier
	Partitions  driven.PartitionStore
	Checkpoints driven.CheckpointStore
	Uploader    driven.BatchUploader
	Notifier    driven.Notifier
	Spreadsheet driven.SpreadsheetBuilder
	Runs        driven.RunStore
}

// Pipeline runs the fetch, classify, upload cycle.
//
// Every batch is checkpointed before it is sent. The checkpoint is deleted
// only once the endpoint confirmed the whole batch; otherwise it is kept
// and resent first on the next run.
type Pipeline struct {
	deps    PipelineDeps
	cfg     PipelineConfig
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// NewPipeline creates a pipeline.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig, log logrus.FieldLogger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		deps:    deps,
		cfg:     cfg,
		log:     log.WithField("component", "pipeline"),
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Run resumes the latest checkpoint if there is one. When the resend
// succeeds the run ends there; otherwise fresh data is collected, assembled,
// checkpointed and sent.
func (p *Pipeline) Run(ctx context.Context, opts domain.RunOptions) (*domain.RunResult, error) {
	result := &domain.RunResult{RunID: p.newID(), StartedAt: p.now()}
	log := p.log.WithField("run_id", result.RunID)
	defer p.sweep(ctx)

	if !opts.SkipResume {
		logger.Section(log, "Resume")
		resumed, err := p.resume(ctx, result.RunID, result.StartedAt)
		switch {
		case err != nil:
			log.WithError(err).Warn("Resume failed, continuing with fresh processing")
		case resumed != nil:
			return p.finish(ctx, resumed), nil
		}
	}

	logger.Section(log, "Collect")
	owners, err := p.deps.Collector.Owners(ctx, opts.MaxOwners)
	if err != nil {
		return p.fail(ctx, result, err)
	}
	if len(owners) == 0 {
		return p.fail(ctx, result, fmt.Errorf("no owners to process: %w", domain.ErrNoData))
	}
	result.OwnersTotal = len(owners)
	result.Owners = p.deps.Collector.Collect(ctx, owners, opts.ReferenceDate)

	var ownerErrs []error
	for _, r := range result.Owners {
		if r.Err != nil {
			result.OwnersFailed++
			ownerErrs = append(ownerErrs, fmt.Errorf("owner %s: %w", r.Owner.Key, r.Err))
		}
	}
	if result.OwnersFailed == len(owners) {
		return p.fail(ctx, result, fmt.Errorf("%w: every owner failed: %w", domain.ErrNoData, errors.Join(ownerErrs...)))
	}
	if len(ownerErrs) > 0 {
		log.WithField("failed", result.OwnersFailed).Warn("Some owners could not be collected")
	}

	logger.Section(log, "Assemble")
	batch, err := p.assemble(ctx, owners, result.Owners, result.StartedAt)
	if err != nil {
		return p.fail(ctx, result, fmt.Errorf("assemble batch: %w", err))
	}
	result.BatchID = batch.ID
	result.Documents = len(batch.Documents)

	info, err := p.deps.Checkpoints.Save(ctx, batch)
	if err != nil {
		return p.fail(ctx, result, fmt.Errorf("save checkpoint: %w", err))
	}
	result.Checkpoint = &info

	logger.Section(log, "Send")
	sent, err := p.deps.Uploader.Send(ctx, batch)
	result.Send = sent
	if err != nil {
		return p.fail(ctx, result, fmt.Errorf("send batch %s: %w", batch.ID, err))
	}
	p.confirm(ctx, batch)

	result.Status = domain.RunCompleted
	return p.finish(ctx, result), nil
}

// Resume resends the most recent checkpoint.
func (p *Pipeline) Resume(ctx context.Context) (*domain.RunResult, error) {
	runID := p.newID()
	started := p.now()

	result, err := p.resume(ctx, runID, started)
	if err != nil {
		if result == nil {
			result = &domain.RunResult{RunID: runID, StartedAt: started}
		}
		return p.fail(ctx, result, err)
	}
	if result == nil {
		p.log.Info("No checkpoint to resume")
		return nil, nil
	}
	return p.finish(ctx, result), nil
}

// resume returns nil and no error when there is no checkpoint.
func (p *Pipeline) resume(ctx context.Context, runID string, started time.Time) (*domain.RunResult, error) {
	info, err := p.deps.Checkpoints.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("find checkpoint: %w", err)
	}
	if info == nil {
		return nil, nil
	}

	log := p.log.WithFields(logrus.Fields{"run_id": runID, "batch_id": info.BatchID})
	log.WithField("created_at", info.CreatedAt).Info("Pending checkpoint found, resending")

	batch, err := p.deps.Checkpoints.Load(ctx, *info)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	result := &domain.RunResult{
		RunID:      runID,
		Status:     domain.RunResumed,
		BatchID:    batch.ID,
		StartedAt:  started,
		Documents:  len(batch.Documents),
		Checkpoint: info,
	}
	sent, err := p.deps.Uploader.Send(ctx, *batch)
	result.Send = sent
	if err != nil {
		return result, fmt.Errorf("resend batch %s: %w", batch.ID, err)
	}
	p.confirm(ctx, *batch)
	return result, nil
}

// assemble builds the batch from the collected owners.
func (p *Pipeline) assemble(
	ctx context.Context,
	owners []domain.Owner,
	results []domain.OwnerResult,
	started time.Time,
) (domain.Batch, error) {
	id := "batch_" + started.UTC().Format(batchIDLayout)
	batch := domain.Batch{
		ID: id,
		Metadata: domain.BatchMetadata{
			BatchID:   id,
			Timestamp: started.UTC(),
			Owners:    make([]domain.OwnerSummary, 0, len(owners)),
		},
	}
	for _, o := range owners {
		batch.Metadata.Owners = append(batch.Metadata.Owners, domain.OwnerSummary{Key: o.Key, Name: o.Name})
	}

	succeeded := make([]domain.OwnerResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			succeeded = append(succeeded, r)
		}
	}
	sort.SliceStable(succeeded, func(i, j int) bool { return succeeded[i].Owner.Key < succeeded[j].Owner.Key })

	for _, r := range succeeded {
		fetched := domain.NewIDSet(r.Fetched...)
		records := append([]domain.DocumentRecord(nil), r.Records...)
		sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
		for _, rec := range records {
			if !rec.IsDelta() && !p.cfg.IncludeBase && !fetched.Has(rec.ID) {
				continue
			}
			content, stored, err := p.deps.Partitions.Read(ctx, r.Owner.Key, rec.ID)
			if err != nil {
				return batch, fmt.Errorf("read %s/%s: %w", r.Owner.Key, rec.ID, err)
			}
			batch.Documents = append(batch.Documents, domain.BatchDocument{
				Name:       r.Owner.Key + "_" + rec.ID,
				Owner:      r.Owner.Key,
				DocumentID: rec.ID,
				Content:    content,
				Delta:      stored.IsDelta(),
			})
			if stored.IsDelta() {
				batch.Metadata.Stats.DeltaDocuments++
			}
		}
	}

	batch.Metadata.Stats.TotalOwners = len(owners)
	batch.Metadata.Stats.SuccessCount = len(succeeded)
	batch.Metadata.Stats.Documents = len(batch.Documents)

	if p.deps.Spreadsheet != nil {
		sheet, err := p.deps.Spreadsheet.Build(ctx, results)
		if err != nil {
			return batch, fmt.Errorf("build spreadsheet: %w", err)
		}
		batch.Spreadsheet = sheet
	}

	p.log.WithFields(logrus.Fields{
		"batch_id":  batch.ID,
		"documents": batch.Metadata.Stats.Documents,
		"delta":     batch.Metadata.Stats.DeltaDocuments,
		"owners":    batch.Metadata.Stats.SuccessCount,
	}).Info("Batch assembled")
	return batch, nil
}

// confirm runs after the endpoint accepted a batch: the checkpoint is
// cleared and the delta documents it carried are promoted to base.
func (p *Pipeline) confirm(ctx context.Context, batch domain.Batch) {
	ctx = context.WithoutCancel(ctx)
	log := p.log.WithField("batch_id", batch.ID)

	if _, err := p.deps.Checkpoints.Clear(ctx, batch.ID); err != nil {
		log.WithError(err).Warn("Failed to clear checkpoint")
	}

	deltas := batch.DeltaDocuments()
	owners := make([]string, 0, len(deltas))
	for owner := range deltas {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		report, err := p.deps.Partitions.Promote(ctx, owner, deltas[owner])
		if err != nil {
			log.WithError(err).WithField("owner", owner).Warn("Failed to promote delta documents")
			continue
		}
		log.WithFields(logrus.Fields{"owner": owner, "moved": report.Moves}).Debug("Delta documents promoted")
	}
}

// sweep removes expired checkpoints. Failures are logged only.
func (p *Pipeline) sweep(ctx context.Context) {
	if p.cfg.CheckpointMaxAge <= 0 {
		return
	}
	n, err := p.deps.Checkpoints.Sweep(context.WithoutCancel(ctx), p.cfg.CheckpointMaxAge)
	if err != nil {
		p.log.WithError(err).Warn("Checkpoint sweep failed")
		return
	}
	if n > 0 {
		p.log.WithField("removed", n).Info("Expired checkpoints removed")
	}
}

func (p *Pipeline) fail(ctx context.Context, result *domain.RunResult, err error) (*domain.RunResult, error) {
	result.Status = domain.RunFailed
	result.Error = err.Error()

	log := p.log.WithFields(logrus.Fields{"run_id": result.RunID, "batch_id": result.BatchID})
	log.WithError(err).Error("Pipeline run failed")
	if p.deps.Notifier != nil {
		msg := fmt.Sprintf("deltasync run %s failed: %v", result.RunID, err)
		if nerr := p.deps.Notifier.Notify(context.WithoutCancel(ctx), msg); nerr != nil {
			log.WithError(nerr).Warn("Failed to send failure notification")
		}
	}
	return p.finish(ctx, result), err
}

// finish stamps, counts and records a run.
func (p *Pipeline) finish(ctx context.Context, result *domain.RunResult) *domain.RunResult {
	result.EndedAt = p.now()
	p.metrics.Run(string(result.Status))

	if p.deps.Runs != nil {
		if err := p.deps.Runs.SaveRun(context.WithoutCancel(ctx), result); err != nil {
			p.log.WithError(err).WithField("run_id", result.RunID).Warn("Failed to record run")
		}
	}

	if result.Status != domain.RunFailed {
		p.log.WithFields(logrus.Fields{
			"run_id":    result.RunID,
			"status":    result.Status,
			"batch_id":  result.BatchID,
			"documents": result.Documents,
			"duration":  result.EndedAt.Sub(result.StartedAt).Round(time.Millisecond).String(),
		}).Info("Pipeline run finished")
	}
	return result
}

// Reconcile runs a standalone reconciliation pass. Without explicit owners
// every owner of the ledger (presence) or of the source (date) is used.
func (p *Pipeline) Reconcile(ctx context.Context, req domain.ReconcileRequest) ([]domain.ReconcileReport, error) {
	mode := req.Mode
	if mode == "" {
		mode = domain.ReconcileByPresence
	}
	if mode != domain.ReconcileByPresence && mode != domain.ReconcileByDate {
		return nil, fmt.Errorf("unknown reconcile mode %q: %w", req.Mode, domain.ErrInvalidInput)
	}
	if mode == domain.ReconcileByDate && req.Reference.IsZero() {
		return nil, fmt.Errorf("reference date is required: %w", domain.ErrInvalidInput)
	}

	owners, err := p.reconcileOwners(ctx, mode, req.Owners)
	if err != nil {
		return nil, err
	}

	reports := make([]domain.ReconcileReport, 0, len(owners))
	for _, owner := range owners {
		var report *domain.ReconcileReport
		switch mode {
		case domain.ReconcileByDate:
			refs, err := p.deps.Collector.Documents(ctx, domain.Owner{Key: owner})
			if err != nil {
				return reports, err
			}
			report, err = p.deps.Partitions.ReconcileByDate(ctx, owner, refs, req.Reference)
			if err != nil {
				return reports, fmt.Errorf("reconcile %s by date: %w", owner, err)
			}
		default:
			known, err := p.deps.Classifier.Known(ctx, owner)
			if err != nil {
				return reports, err
			}
			report, err = p.deps.Partitions.ReconcileByPresence(ctx, owner, known.Sorted())
			if err != nil {
				return reports, fmt.Errorf("reconcile %s by presence: %w", owner, err)
			}
		}
		p.log.WithFields(logrus.Fields{
			"owner":   owner,
			"mode":    mode,
			"records": len(report.Records),
			"moves":   report.Moves,
			"skipped": len(report.Skipped),
		}).Info("Owner reconciled")
		reports = append(reports, *report)
	}
	return reports, nil
}

func (p *Pipeline) reconcileOwners(ctx context.Context, mode domain.ReconcileMode, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	set := domain.NewIDSet()
	if mode == domain.ReconcileByDate {
		owners, err := p.deps.Collector.Owners(ctx, 0)
		if err != nil {
			return nil, err
		}
		for _, o := range owners {
			set.Add(o.Key)
		}
		return set.Sorted(), nil
	}
	entries, err := p.deps.Classifier.Entries(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		set.Add(e.Owner)
	}
	return set.Sorted(), nil
}
