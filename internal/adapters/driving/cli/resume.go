package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resend the most recent pending checkpoint",
	Args:  cobra.NoArgs,
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, _ []string) error {
	if pipelineService == nil {
		return errNotConfigured("pipeline service")
	}

	result, err := pipelineService.Resume(cmd.Context())
	if result != nil {
		printRunResult(cmd, result)
	}
	if err != nil {
		return fmt.Errorf("resume failed: %w", err)
	}
	if result == nil {
		cmd.Println("No pending checkpoint.")
	}
	return nil
}
