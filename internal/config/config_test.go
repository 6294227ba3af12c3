package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DELTASYNC_DATA_DIR", dataDir)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend())
	assert.Equal(t, DefaultChunkSize, cfg.Ingest.ChunkSize)
	assert.Equal(t, time.Hour, cfg.Ingest.Timeout.Std())
	assert.Equal(t, 60*time.Second, cfg.Notify.Timeout.Std())
	assert.Equal(t, 24*time.Hour, cfg.Checkpoint.MaxAge.Std())
	assert.Equal(t, filepath.Join(dataDir, "data"), cfg.Partition.BaseDir)
	assert.Equal(t, filepath.Join(dataDir, "delta"), cfg.Partition.DeltaDir)
	assert.Equal(t, filepath.Join(dataDir, "checkpoints"), cfg.Checkpoint.Dir)
}

func TestLoad_File(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
environment = "staging"
data_dir = "`+filepath.ToSlash(dataDir)+`"

[ledger]
backend = "sqlite"

[ingest]
url = "https://ingest.example.com/batches"
chunk_size = 5
timeout = "30m"

[partition]
base_dir = "/srv/base"

[reconcile]
reference_date = "01/02/2024"
include_base = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, BackendSQLite, cfg.LedgerBackend())
	assert.Equal(t, filepath.Join(dataDir, "deltasync.db"), cfg.Ledger.SQLitePath)
	assert.Equal(t, "https://ingest.example.com/batches", cfg.Ingest.URL)
	assert.Equal(t, 5, cfg.Ingest.ChunkSize)
	assert.Equal(t, 30*time.Minute, cfg.Ingest.Timeout.Std())
	assert.Equal(t, "/srv/base", cfg.Partition.BaseDir)
	assert.True(t, cfg.Reconcile.IncludeBase)

	ref, err := cfg.ReferenceDate()
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *ref)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[ingest]
url = "https://file.example.com"
`)
	t.Setenv("DELTASYNC_DATA_DIR", t.TempDir())
	t.Setenv("DELTASYNC_ENV", "production")
	t.Setenv("DELTASYNC_INGEST_URL", "https://env.example.com")
	t.Setenv("DELTASYNC_CHUNK_SIZE", "3")
	t.Setenv("DELTASYNC_NOTIFY_TIMEOUT", "5s")
	t.Setenv("DELTASYNC_VERBOSE", "true")
	t.Setenv("DELTASYNC_WATCH", "1")
	t.Setenv("DELTASYNC_WATCH_DEBOUNCE", "500ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, BackendDynamoDB, cfg.LedgerBackend())
	assert.Equal(t, "https://env.example.com", cfg.Ingest.URL)
	assert.Equal(t, 3, cfg.Ingest.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Notify.Timeout.Std())
	assert.True(t, cfg.Log.Verbose)
	assert.True(t, cfg.Source.Watch)
	assert.Equal(t, 500*time.Millisecond, cfg.Source.WatchDebounce.Std())
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("DELTASYNC_DATA_DIR", t.TempDir())
	t.Setenv("DELTASYNC_WORKERS", "many")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
[ingest]
timeout = "forever"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown environment", func(c *Config) { c.Environment = "qa" }},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "redis" }},
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }},
		{"zero workers", func(c *Config) { c.Source.Workers = 0 }},
		{"negative max owners", func(c *Config) { c.Source.MaxOwners = -1 }},
		{"bad reference date", func(c *Config) { c.Reconcile.ReferenceDate = "yesterday" }},
		{"missing table", func(c *Config) {
			c.Ledger.Backend = BackendDynamoDB
			c.Ledger.DynamoDB.Table = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestValidate_Default(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
