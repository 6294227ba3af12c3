package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/adapters/driven/checkpoint"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/ingest"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/spreadsheet"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/dynamodb"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/partition"
	"github.com/custodia-labs/deltasync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/deltasync/internal/adapters/driving/cli"
	"github.com/custodia-labs/deltasync/internal/config"
	"github.com/custodia-labs/deltasync/internal/connectors/directory"
	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/core/services"
	"github.com/custodia-labs/deltasync/internal/logger"
	"github.com/custodia-labs/deltasync/internal/metrics"
)

// bootstrap loads the configuration and wires every component.
func bootstrap(_ context.Context, opts cli.GlobalOptions) (*cli.Services, error) {
	path := opts.ConfigPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locate config: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Verbose = true
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	return build(cfg)
}

// build creates the services described by cfg.
func build(cfg *config.Config) (*cli.Services, error) {
	log, err := logger.New(logger.Options{Verbose: cfg.Log.Verbose, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*cli.Services, error) {
		_ = closeAll()
		return nil, err
	}

	backend := cfg.LedgerBackend()
	ledger, err := storage.NewLedger(storage.LedgerOptions{
		Backend:    backend,
		SQLitePath: cfg.Ledger.SQLitePath,
		DynamoDB: dynamodb.Config{
			Table:           cfg.Ledger.DynamoDB.Table,
			Region:          cfg.Ledger.DynamoDB.Region,
			Endpoint:        cfg.Ledger.DynamoDB.Endpoint,
			AccessKeyID:     cfg.Ledger.DynamoDB.AccessKeyID,
			SecretAccessKey: cfg.Ledger.DynamoDB.SecretAccessKey,
			MaxRetries:      cfg.Ledger.DynamoDB.MaxRetries,
		},
	})
	if err != nil {
		return nil, err
	}
	closers = append(closers, ledger.Close)

	runs, tasks, closeState, err := stateStores(cfg, backend)
	if err != nil {
		return fail(err)
	}
	if closeState != nil {
		closers = append(closers, closeState)
	}

	partitions, err := partition.New(partition.Config{
		BaseDir:  cfg.Partition.BaseDir,
		DeltaDir: cfg.Partition.DeltaDir,
	}, log, m)
	if err != nil {
		return fail(fmt.Errorf("open partitions: %w", err))
	}

	checkpoints, err := checkpoint.New(checkpoint.Config{
		Dir:    cfg.Checkpoint.Dir,
		Prefix: cfg.Checkpoint.Prefix,
	}, log, m)
	if err != nil {
		return fail(fmt.Errorf("open checkpoints: %w", err))
	}

	uploader, err := newUploader(cfg, log, m)
	if err != nil {
		return fail(err)
	}

	notifier := ingest.NewNotifier(ingest.NotifierConfig{
		URL:           cfg.Notify.URL,
		Authorization: cfg.Notify.Authorization,
		Timeout:       cfg.Notify.Timeout.Std(),
	}, log)

	reference, err := cfg.ReferenceDate()
	if err != nil {
		return fail(err)
	}

	source := directory.New(cfg.Source.Inbox, log)
	classifier := services.NewClassifier(ledger, log, m)
	collector := services.NewCollector(
		source,
		classifier,
		partitions,
		services.CollectorConfig{
			Workers:   cfg.Source.Workers,
			RateLimit: cfg.Source.RateLimit,
			RateBurst: cfg.Source.RateBurst,
		},
		log, m,
	)
	pipeline := services.NewPipeline(services.PipelineDeps{
		Collector:   collector,
		Classifier:  classifier,
		Partitions:  partitions,
		Checkpoints: checkpoints,
		Uploader:    uploader,
		Notifier:    notifier,
		Spreadsheet: spreadsheet.NewCSVBuilder(""),
		Runs:        runs,
	}, services.PipelineConfig{
		IncludeBase:      cfg.Reconcile.IncludeBase,
		CheckpointMaxAge: cfg.Checkpoint.MaxAge.Std(),
	}, log, m)
	checkpointService := services.NewCheckpointService(checkpoints, cfg.Checkpoint.MaxAge.Std())

	runDefaults := domain.RunOptions{
		MaxOwners:     cfg.Source.MaxOwners,
		ReferenceDate: reference,
	}

	return &cli.Services{
		Pipeline:       pipeline,
		Ledger:         classifier,
		Checkpoints:    checkpointService,
		History:        services.NewRunHistory(runs),
		Scheduler:      services.NewScheduler(schedulerConfig(cfg), tasks, pipeline, checkpointService, runDefaults, log),
		RunDefaults:    runDefaults,
		Watcher:        source.Watcher(cfg.Source.WatchDebounce.Std()),
		Watch:          cfg.Source.Watch,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		MetricsAddr:    cfg.Metrics.Addr,
		Close:          closeAll,
	}, nil
}

// stateStores returns the run and scheduler stores. They share the SQLite
// database unless the ledger itself lives in memory.
func stateStores(cfg *config.Config, backend string) (driven.RunStore, driven.SchedulerStore, func() error, error) {
	if backend == config.BackendMemory {
		return memory.NewRunStore(), memory.NewSchedulerStore(), nil, nil
	}
	store, err := sqlite.NewStore(cfg.Ledger.SQLitePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state database: %w", err)
	}
	return store.RunStore(), store.SchedulerStore(), store.Close, nil
}

func newUploader(cfg *config.Config, log logrus.FieldLogger, m *metrics.Metrics) (driven.BatchUploader, error) {
	if cfg.Ingest.URL == "" {
		log.Warn("ingest.url is not set; batches will be checkpointed but not sent")
		return unconfiguredUploader{}, nil
	}
	return ingest.NewUploader(ingest.Config{
		URL:           cfg.Ingest.URL,
		Authorization: cfg.Ingest.Authorization,
		ChunkSize:     cfg.Ingest.ChunkSize,
		Timeout:       cfg.Ingest.Timeout.Std(),
	}, log, m)
}

// unconfiguredUploader fails every send so batches stay checkpointed.
type unconfiguredUploader struct{}

func (unconfiguredUploader) Send(_ context.Context, _ domain.Batch) (*domain.SendResult, error) {
	return nil, fmt.Errorf("ingest.url is not configured: %w", domain.ErrUploadFailed)
}

func schedulerConfig(cfg *config.Config) domain.SchedulerConfig {
	return domain.SchedulerConfig{
		Enabled: cfg.Scheduler.Enabled,
		Tasks: map[string]domain.TaskConfig{
			domain.TaskIDPipelineRun: {
				Enabled:  cfg.Scheduler.Enabled && cfg.Scheduler.RunInterval > 0,
				Interval: cfg.Scheduler.RunInterval.Std(),
			},
			domain.TaskIDCheckpointSweep: {
				Enabled:  cfg.Scheduler.Enabled && cfg.Scheduler.SweepInterval > 0,
				Interval: cfg.Scheduler.SweepInterval.Std(),
			},
		},
	}
}
