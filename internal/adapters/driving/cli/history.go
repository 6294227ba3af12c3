package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent pipeline runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryCmd,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "number of runs to show (0 uses the default)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print runs as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if runHistory == nil {
		return errNotConfigured("run history")
	}

	runs, err := runHistory.Runs(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}
	if historyJSON {
		return printJSON(cmd, runs)
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}
	for _, r := range runs {
		batch := r.BatchID
		if batch == "" {
			batch = "-"
		}
		cmd.Printf("%s  %-9s  %-24s  owners %d/%d  docs %d",
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.Status, batch,
			r.OwnersTotal-r.OwnersFailed, r.OwnersTotal, r.Documents)
		if r.Error != "" {
			cmd.Printf("  %s", r.Error)
		}
		cmd.Println()
	}
	return nil
}
