package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

var (
	ledgerOwner string
	ledgerJSON  bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the ledger of known documents",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known documents",
	Long: `Lists the documents recorded as known. With --owner only the ids of
that owner are printed.`,
	Args: cobra.NoArgs,
	RunE: runLedgerList,
}

func init() {
	ledgerListCmd.Flags().StringVar(&ledgerOwner, "owner", "", "only list this owner's document ids")
	ledgerListCmd.Flags().BoolVar(&ledgerJSON, "json", false, "print entries as JSON")
	ledgerCmd.AddCommand(ledgerListCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func runLedgerList(cmd *cobra.Command, _ []string) error {
	if ledgerService == nil {
		return errNotConfigured("ledger service")
	}
	ctx := cmd.Context()

	if ledgerOwner != "" {
		known, err := ledgerService.Known(ctx, ledgerOwner)
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}
		ids := known.Sorted()
		if ledgerJSON {
			return printJSON(cmd, ids)
		}
		if len(ids) == 0 {
			cmd.Printf("No known documents for %s.\n", ledgerOwner)
			return nil
		}
		for _, id := range ids {
			cmd.Println(id)
		}
		return nil
	}

	entries, err := ledgerService.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	sortEntries(entries)
	if ledgerJSON {
		return printJSON(cmd, entries)
	}
	if len(entries) == 0 {
		cmd.Println("Ledger is empty.")
		return nil
	}
	for _, e := range entries {
		cmd.Printf("%-16s %-24s %s\n", e.Owner, e.DocumentID, e.DownloadedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	cmd.Printf("%d document(s).\n", len(entries))
	return nil
}

func sortEntries(entries []domain.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Owner != entries[j].Owner {
			return entries[i].Owner < entries[j].Owner
		}
		return entries[i].DocumentID < entries[j].DocumentID
	})
}
