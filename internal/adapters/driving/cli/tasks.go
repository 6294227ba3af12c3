package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	tasksJSON         bool
	tasksHistoryLimit int
	tasksHistoryJSON  bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show the scheduled tasks and their latest outcome",
	Args:  cobra.NoArgs,
	RunE:  runTasksCmd,
}

var tasksHistoryCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "Show recent task executions with the pipeline runs they produced",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTasksHistory,
}

func init() {
	tasksCmd.Flags().BoolVar(&tasksJSON, "json", false, "print tasks as JSON")
	tasksHistoryCmd.Flags().IntVarP(&tasksHistoryLimit, "limit", "n", 0, "number of executions to show (0 uses the default)")
	tasksHistoryCmd.Flags().BoolVar(&tasksHistoryJSON, "json", false, "print executions as JSON")
	tasksCmd.AddCommand(tasksHistoryCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasksCmd(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errNotConfigured("scheduler")
	}

	tasks, err := scheduler.Tasks(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read tasks: %w", err)
	}
	if tasksJSON {
		return printJSON(cmd, tasks)
	}
	if len(tasks) == 0 {
		cmd.Println("No scheduled tasks. Run 'deltasync serve' to set them up.")
		return nil
	}
	for _, t := range tasks {
		state := "enabled"
		if !t.Enabled {
			state = "disabled"
		}
		cmd.Printf("%-16s  %-8s  every %-8s  last %s  next %s",
			t.ID, state, t.Interval, formatTime(t.LastRun), formatTime(t.NextRun))
		if t.LastStatus != "" {
			cmd.Printf("  %s", t.LastStatus)
		}
		if t.LastRunID != "" {
			cmd.Printf("  run %s", t.LastRunID)
		}
		if t.LastError != "" {
			cmd.Printf("  %s", t.LastError)
		}
		cmd.Println()
	}
	return nil
}

func runTasksHistory(cmd *cobra.Command, args []string) error {
	if scheduler == nil {
		return errNotConfigured("scheduler")
	}

	var taskID string
	if len(args) == 1 {
		taskID = args[0]
	}
	execs, err := scheduler.Executions(cmd.Context(), taskID, tasksHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to read task history: %w", err)
	}
	if tasksHistoryJSON {
		return printJSON(cmd, execs)
	}
	if len(execs) == 0 {
		cmd.Println("No task executions recorded.")
		return nil
	}
	for _, e := range execs {
		cmd.Printf("%s  %-16s  %-9s  %-9s  %s",
			formatTime(e.StartedAt), e.TaskID, e.Trigger, e.Status, e.EndedAt.Sub(e.StartedAt).Round(time.Second))
		switch e.TaskID {
		case domain.TaskIDPipelineRun:
			if e.RunID != "" {
				cmd.Printf("  run %s", e.RunID)
			}
			if e.BatchID != "" {
				cmd.Printf("  %s  docs %d", e.BatchID, e.Documents)
			}
		case domain.TaskIDCheckpointSweep:
			cmd.Printf("  removed %d", e.Removed)
		}
		if e.Error != "" {
			cmd.Printf("  %s", e.Error)
		}
		cmd.Println()
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
