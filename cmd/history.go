// cmd/history.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently finished jobs from the local job ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		ledger, err := a.historyStore()
		if err != nil {
			return err
		}
		if ledger == nil {
			return fmt.Errorf("job history is disabled (history.path is empty)")
		}
		records, err := ledger.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet.")
			return nil
		}
		printHistory(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of jobs to show")
}
