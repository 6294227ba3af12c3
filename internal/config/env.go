package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DELTASYNC_"

type lookupFunc func(string) (string, bool)

// applyEnv overrides file values with DELTASYNC_* environment variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("ENV", &c.Environment)
	str("DATA_DIR", &c.DataDir)
	str("LOG_FORMAT", &c.Log.Format)
	str("LEDGER_BACKEND", &c.Ledger.Backend)
	str("SQLITE_PATH", &c.Ledger.SQLitePath)
	str("DYNAMODB_TABLE", &c.Ledger.DynamoDB.Table)
	str("DYNAMODB_REGION", &c.Ledger.DynamoDB.Region)
	str("DYNAMODB_ENDPOINT", &c.Ledger.DynamoDB.Endpoint)
	str("AWS_ACCESS_KEY_ID", &c.Ledger.DynamoDB.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.Ledger.DynamoDB.SecretAccessKey)
	str("SOURCE_INBOX", &c.Source.Inbox)
	str("REFERENCE_DATE", &c.Reconcile.ReferenceDate)
	str("INGEST_URL", &c.Ingest.URL)
	str("INGEST_AUTHORIZATION", &c.Ingest.Authorization)
	str("NOTIFY_URL", &c.Notify.URL)
	str("NOTIFY_AUTHORIZATION", &c.Notify.Authorization)
	str("CHECKPOINT_DIR", &c.Checkpoint.Dir)
	str("METRICS_ADDR", &c.Metrics.Addr)

	bools := map[string]*bool{
		"VERBOSE": &c.Log.Verbose,
		"WATCH":   &c.Source.Watch,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"CHUNK_SIZE": &c.Ingest.ChunkSize,
		"WORKERS":    &c.Source.Workers,
		"MAX_OWNERS": &c.Source.MaxOwners,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*Duration{
		"INGEST_TIMEOUT":     &c.Ingest.Timeout,
		"NOTIFY_TIMEOUT":     &c.Notify.Timeout,
		"CHECKPOINT_MAX_AGE": &c.Checkpoint.MaxAge,
		"WATCH_DEBOUNCE":     &c.Source.WatchDebounce,
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = Duration(d)
		}
	}
	return nil
}
