package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

var (
	reconcileMode          string
	reconcileReferenceDate string
	reconcileOwners        []string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile local partitions with the ledger or source dates",
	Long: `Re-derives where each document belongs.

In presence mode the ledger's known documents are matched against the local
partitions. In date mode every listed document dated after the reference date
is moved to the delta partition and every other one to the base partition.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileMode, "mode", string(domain.ReconcileByPresence), "presence or date")
	reconcileCmd.Flags().StringVar(&reconcileReferenceDate, "reference-date", "", "reference date for date mode")
	reconcileCmd.Flags().StringSliceVar(&reconcileOwners, "owner", nil, "owner key to reconcile (repeatable)")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	if pipelineService == nil {
		return errNotConfigured("pipeline service")
	}

	req := domain.ReconcileRequest{
		Mode:   domain.ReconcileMode(reconcileMode),
		Owners: reconcileOwners,
	}
	if reconcileReferenceDate != "" {
		ref, err := domain.ParseSourceDate(reconcileReferenceDate)
		if err != nil {
			return fmt.Errorf("reference date: %w", err)
		}
		req.Reference = ref
	}

	reports, err := pipelineService.Reconcile(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	if len(reports) == 0 {
		cmd.Println("Nothing to reconcile.")
		return nil
	}
	moves := 0
	for _, r := range reports {
		delta := 0
		for _, rec := range r.Records {
			if rec.IsDelta() {
				delta++
			}
		}
		cmd.Printf("%s: %d documents, %d delta, %d moved", r.Owner, len(r.Records), delta, r.Moves)
		if len(r.Skipped) > 0 {
			cmd.Printf(", %d skipped", len(r.Skipped))
		}
		cmd.Println()
		moves += r.Moves
	}
	cmd.Printf("Reconciled %d owners, %d moves.\n", len(reports), moves)
	return nil
}
