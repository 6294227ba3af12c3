package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and manage pending batch checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending checkpoints, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointList,
}

var checkpointSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete checkpoints older than the configured maximum age",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointSweep,
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear [batch-id]",
	Short: "Delete every checkpoint of a batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointClear,
}

func init() {
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointSweepCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func runCheckpointList(cmd *cobra.Command, _ []string) error {
	if checkpointService == nil {
		return errNotConfigured("checkpoint service")
	}

	infos, err := checkpointService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(infos) == 0 {
		cmd.Println("No pending checkpoints.")
		return nil
	}
	for _, info := range infos {
		cmd.Printf("%s  %s  %s\n", info.CreatedAt.UTC().Format("2006-01-02 15:04:05"), info.BatchID, info.Path)
	}
	return nil
}

func runCheckpointSweep(cmd *cobra.Command, _ []string) error {
	if checkpointService == nil {
		return errNotConfigured("checkpoint service")
	}

	n, err := checkpointService.Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to sweep checkpoints: %w", err)
	}
	cmd.Printf("Removed %d expired checkpoint(s).\n", n)
	return nil
}

func runCheckpointClear(cmd *cobra.Command, args []string) error {
	if checkpointService == nil {
		return errNotConfigured("checkpoint service")
	}

	n, err := checkpointService.Clear(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	cmd.Printf("Removed %d checkpoint(s) of %s.\n", n, args[0])
	return nil
}
