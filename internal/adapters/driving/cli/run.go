package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

var (
	runMaxOwners     int
	runReferenceDate string
	runSkipResume    bool
	runJSON          bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one collection cycle",
	Long: `Runs one cycle of the pipeline. A pending checkpoint is resent first;
when that succeeds the cycle ends there. Otherwise every owner is collected,
the new documents are assembled into a batch, checkpointed and sent.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runMaxOwners, "max-owners", 0, "process at most this many owners (0 means all)")
	runCmd.Flags().StringVar(&runReferenceDate, "reference-date", "",
		"reconcile every owner by date against this reference (dd/mm/yyyy or yyyy-mm-dd)")
	runCmd.Flags().BoolVar(&runSkipResume, "skip-resume", false, "do not resend a pending checkpoint")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run result as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	if pipelineService == nil {
		return errNotConfigured("pipeline service")
	}

	opts := runDefaults
	if cmd.Flags().Changed("max-owners") {
		opts.MaxOwners = runMaxOwners
	}
	if runSkipResume {
		opts.SkipResume = true
	}
	if runReferenceDate != "" {
		ref, err := domain.ParseSourceDate(runReferenceDate)
		if err != nil {
			return fmt.Errorf("reference date: %w", err)
		}
		opts.ReferenceDate = &ref
	}

	result, err := pipelineService.Run(cmd.Context(), opts)
	if result != nil {
		if runJSON {
			if perr := printJSON(cmd, result); perr != nil {
				return perr
			}
		} else {
			printRunResult(cmd, result)
		}
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func printRunResult(cmd *cobra.Command, r *domain.RunResult) {
	cmd.Printf("Run %s: %s\n", r.RunID, r.Status)
	if r.BatchID != "" {
		cmd.Printf("  Batch:      %s\n", r.BatchID)
	}
	if r.OwnersTotal > 0 {
		cmd.Printf("  Owners:     %d (%d failed)\n", r.OwnersTotal, r.OwnersFailed)
	}
	cmd.Printf("  Documents:  %d\n", r.Documents)
	if !r.EndedAt.IsZero() {
		cmd.Printf("  Duration:   %s\n", r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	for _, o := range r.Owners {
		switch {
		case o.Err != nil:
			cmd.Printf("  ! %s: %v\n", o.Owner.Key, o.Err)
		case o.Degraded:
			cmd.Printf("  ~ %s: %d new (ledger unavailable)\n", o.Owner.Key, o.NewCount)
		}
	}
	if r.Checkpoint != nil && r.Status == domain.RunFailed {
		cmd.Printf("  Checkpoint: %s\n", r.Checkpoint.Path)
	}
	if r.Error != "" {
		cmd.Printf("  Error:      %s\n", r.Error)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
