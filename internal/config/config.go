// Package config loads deltasync configuration.
//
// Configuration is read from a TOML file (default ~/.deltasync/config.toml),
// defaults are applied first, and DELTASYNC_* environment variables override
// file values. Endpoints and secrets are usually supplied through the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Ledger backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Defaults.
const (
	DefaultChunkSize      = 10
	DefaultIngestTimeout  = time.Hour
	DefaultNotifyTimeout  = 60 * time.Second
	DefaultCheckpointAge  = 24 * time.Hour
	DefaultWorkers        = 4
	DefaultRateLimit      = 2.0
	DefaultRateBurst      = 1
	DefaultDynamoDBTable  = "deltasync-ledger"
	DefaultDynamoDBRegion = "eu-west-3"
	DefaultCheckpointName = "retry_"
)

// Duration is a time.Duration written as a string ("1h", "90s") in TOML.
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete deltasync configuration.
type Config struct {
	Environment string `toml:"environment"`

	// DataDir is the root for every relative path below. Defaults to ~/.deltasync.
	DataDir string `toml:"data_dir"`

	Log        LogConfig        `toml:"log"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Partition  PartitionConfig  `toml:"partition"`
	Source     SourceConfig     `toml:"source"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Ingest     IngestConfig     `toml:"ingest"`
	Notify     NotifyConfig     `toml:"notify"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"`
}

// LedgerConfig selects and configures the ledger backend.
type LedgerConfig struct {
	// Backend is memory, sqlite or dynamodb. Empty selects dynamodb in
	// production and memory elsewhere.
	Backend    string         `toml:"backend"`
	SQLitePath string         `toml:"sqlite_path"`
	DynamoDB   DynamoDBConfig `toml:"dynamodb"`
}

// DynamoDBConfig configures the DynamoDB ledger.
type DynamoDBConfig struct {
	Table           string `toml:"table"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	MaxRetries      int    `toml:"max_retries"`
}

// PartitionConfig locates the delta and base document areas.
type PartitionConfig struct {
	BaseDir  string `toml:"base_dir"`
	DeltaDir string `toml:"delta_dir"`
}

// SourceConfig configures document collection.
type SourceConfig struct {
	// Inbox is the directory read by the directory connector.
	Inbox     string  `toml:"inbox"`
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
	MaxOwners int     `toml:"max_owners"`

	// Watch makes the serve command run the pipeline when the inbox changes.
	Watch         bool     `toml:"watch"`
	WatchDebounce Duration `toml:"watch_debounce"`
}

// ReconcileConfig tunes reconciliation during a run.
type ReconcileConfig struct {
	// ReferenceDate, when set, triggers by-date reconciliation of each owner.
	ReferenceDate string `toml:"reference_date"`

	// IncludeBase adds base documents to every batch.
	IncludeBase bool `toml:"include_base"`
}

// IngestConfig configures the ingestion endpoint.
type IngestConfig struct {
	URL           string   `toml:"url"`
	Authorization string   `toml:"authorization"`
	ChunkSize     int      `toml:"chunk_size"`
	Timeout       Duration `toml:"timeout"`
}

// NotifyConfig configures the notification side channel.
type NotifyConfig struct {
	URL           string   `toml:"url"`
	Authorization string   `toml:"authorization"`
	Timeout       Duration `toml:"timeout"`
}

// CheckpointConfig configures checkpoint files.
type CheckpointConfig struct {
	Dir    string   `toml:"dir"`
	Prefix string   `toml:"prefix"`
	MaxAge Duration `toml:"max_age"`
}

// SchedulerConfig configures the background scheduler.
type SchedulerConfig struct {
	Enabled       bool     `toml:"enabled"`
	RunInterval   Duration `toml:"run_interval"`
	SweepInterval Duration `toml:"sweep_interval"`
}

// MetricsConfig configures the metrics endpoint of the serve command.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	sched := domain.DefaultSchedulerConfig()
	return &Config{
		Environment: EnvDevelopment,
		Log:         LogConfig{Format: "auto"},
		Ledger: LedgerConfig{
			DynamoDB: DynamoDBConfig{
				Table:      DefaultDynamoDBTable,
				Region:     DefaultDynamoDBRegion,
				MaxRetries: 3,
			},
		},
		Source: SourceConfig{
			Workers:   DefaultWorkers,
			RateLimit: DefaultRateLimit,
			RateBurst: DefaultRateBurst,
		},
		Ingest: IngestConfig{
			ChunkSize: DefaultChunkSize,
			Timeout:   Duration(DefaultIngestTimeout),
		},
		Notify: NotifyConfig{
			Timeout: Duration(DefaultNotifyTimeout),
		},
		Checkpoint: CheckpointConfig{
			Prefix: DefaultCheckpointName,
			MaxAge: Duration(DefaultCheckpointAge),
		},
		Scheduler: SchedulerConfig{
			Enabled:       sched.Enabled,
			RunInterval:   Duration(sched.Task(domain.TaskIDPipelineRun).Interval),
			SweepInterval: Duration(sched.Task(domain.TaskIDCheckpointSweep).Interval),
		},
	}
}

// DefaultPath returns ~/.deltasync/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".deltasync", "config.toml"), nil
}

// Load reads the file at path over the defaults, applies environment
// overrides, resolves paths and validates the result.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// No config file yet - defaults and environment only
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LedgerBackend returns the effective ledger backend.
func (c *Config) LedgerBackend() string {
	if c.Ledger.Backend != "" {
		return c.Ledger.Backend
	}
	if c.Environment == EnvProduction {
		return BackendDynamoDB
	}
	return BackendMemory
}

// ReferenceDate returns the parsed reconcile.reference_date, or nil when unset.
func (c *Config) ReferenceDate() (*time.Time, error) {
	if c.Reconcile.ReferenceDate == "" {
		return nil, nil
	}
	t, err := domain.ParseSourceDate(c.Reconcile.ReferenceDate)
	if err != nil {
		return nil, fmt.Errorf("reconcile.reference_date: %w", err)
	}
	return &t, nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("environment %q: %w", c.Environment, domain.ErrInvalidInput))
	}

	switch c.LedgerBackend() {
	case BackendMemory, BackendSQLite:
	case BackendDynamoDB:
		if c.Ledger.DynamoDB.Table == "" {
			errs = append(errs, fmt.Errorf("ledger.dynamodb.table is required: %w", domain.ErrInvalidInput))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q: %w", c.Ledger.Backend, domain.ErrInvalidInput))
	}

	if c.Ingest.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size must be positive: %w", domain.ErrInvalidInput))
	}
	if c.Source.Workers < 1 {
		errs = append(errs, fmt.Errorf("source.workers must be positive: %w", domain.ErrInvalidInput))
	}
	if c.Source.MaxOwners < 0 {
		errs = append(errs, fmt.Errorf("source.max_owners must not be negative: %w", domain.ErrInvalidInput))
	}
	if c.Checkpoint.MaxAge.Std() <= 0 {
		errs = append(errs, fmt.Errorf("checkpoint.max_age must be positive: %w", domain.ErrInvalidInput))
	}
	if _, err := c.ReferenceDate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// resolve fills empty paths from DataDir.
func (c *Config) resolve() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		c.DataDir = filepath.Join(home, ".deltasync")
	}

	c.Partition.BaseDir = c.under(c.Partition.BaseDir, "data")
	c.Partition.DeltaDir = c.under(c.Partition.DeltaDir, "delta")
	c.Checkpoint.Dir = c.under(c.Checkpoint.Dir, "checkpoints")
	c.Source.Inbox = c.under(c.Source.Inbox, "inbox")
	c.Ledger.SQLitePath = c.under(c.Ledger.SQLitePath, "deltasync.db")
	return nil
}

func (c *Config) under(p, def string) string {
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
