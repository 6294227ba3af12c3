// Package cli implements the deltasync command line.
//
// Commands drive the core through the driving ports held in package
// variables. The composition root installs a Bootstrap that builds them
// from the persistent flags before any command runs.
package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/core/ports/driving"
)

var version = "dev"

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
	LogFormat  string
}

// Services holds everything the commands drive.
type Services struct {
	Pipeline    driving.Pipeline
	Ledger      driving.LedgerService
	Checkpoints driving.CheckpointService
	History     driving.RunHistory
	Scheduler   driving.Scheduler

	// RunDefaults are the configured options of a pipeline run.
	RunDefaults domain.RunOptions

	// Watcher, when set, lets serve run the pipeline on source changes.
	// Watch enables it without the --watch flag.
	Watcher driven.SourceWatcher
	Watch   bool

	// MetricsHandler serves the metrics registry, MetricsAddr is where.
	MetricsHandler http.Handler
	MetricsAddr    string

	// Close releases backends. Optional.
	Close func() error
}

// Bootstrap builds the services from the persistent flags.
type Bootstrap func(ctx context.Context, opts GlobalOptions) (*Services, error)

var (
	globalOpts GlobalOptions
	bootstrap  Bootstrap

	pipelineService   driving.Pipeline
	ledgerService     driving.LedgerService
	checkpointService driving.CheckpointService
	runHistory        driving.RunHistory
	scheduler         driving.Scheduler
	runDefaults       domain.RunOptions
	sourceWatcher     driven.SourceWatcher
	watchDefault      bool
	metricsHandler    http.Handler
	metricsAddr       string
	closeServices     func() error
)

var rootCmd = &cobra.Command{
	Use:   "deltasync",
	Short: "Collect owner documents and deliver the new ones downstream",
	Long: `deltasync fetches the documents published for every owner, keeps track
of the ones already delivered in a ledger, and sends each cycle's batch to the
ingestion endpoint. Batches that could not be delivered are checkpointed and
resent on the next run.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalOpts.ConfigPath, "config", "c", "", "config file (default ~/.deltasync/config.toml)")
	flags.BoolVarP(&globalOpts.Verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&globalOpts.LogFormat, "log-format", "", "log format: text or json")
}

// SetBootstrap installs the function that builds the services.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs the services directly.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	pipelineService = s.Pipeline
	ledgerService = s.Ledger
	checkpointService = s.Checkpoints
	runHistory = s.History
	scheduler = s.Scheduler
	runDefaults = s.RunDefaults
	sourceWatcher = s.Watcher
	watchDefault = s.Watch
	metricsHandler = s.MetricsHandler
	metricsAddr = s.MetricsAddr
	closeServices = s.Close
}

// Execute runs the root command.
func Execute(ctx context.Context, v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	if bootstrap == nil || cmd == versionCmd {
		return nil
	}
	s, err := bootstrap(cmd.Context(), globalOpts)
	if err != nil {
		return err
	}
	SetServices(s)
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

// errNotConfigured is returned by commands whose service was not wired.
func errNotConfigured(name string) error {
	return errors.New(name + " not configured")
}
