// cmd/reconcile.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saofleet/reconciler/internal/jobs"
	"github.com/saofleet/reconciler/internal/reconcile"
	"github.com/saofleet/reconciler/internal/table"
)

var reconcileOutput string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile SERVICES USAGES",
	Short: "Reconcile two local files and write the unmatched usage rows",
	Long: `Runs one reconciliation synchronously, without a queue.

SERVICES and USAGES are CSV or XLSX files. The output format follows the
extension of --output (default: usos_sin_servicios with the configured
storage.format).`,
	Example: `  reconciler reconcile servicios.xlsx usos.xlsx
  reconciler reconcile servicios.csv usos.csv -o pendientes.csv`,
	Args: cobra.ExactArgs(2),
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := newApp("reconcile")
	if err != nil {
		return err
	}
	defer a.Close()

	output := reconcileOutput
	if output == "" {
		output = jobs.ResultName + a.cfg.ResultFormat().Extension()
	}
	// Reject an unsupported output before doing any work
	if _, err := table.FormatFromPath(output); err != nil {
		return err
	}

	services, err := table.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}
	usages, err := table.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("usages: %w", err)
	}
	Debug("read %d service rows and %d usage rows", services.Len(), usages.Len())

	res, err := reconcile.NewEngine(a.cfg.EngineConfig()).ReconcileTables(services, usages)
	if err != nil {
		return err
	}
	if err := table.WriteFile(output, res.Table()); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	printSummary(cmd.OutOrStdout(), res.Summary, output)
	return nil
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&reconcileOutput, "output", "o", "", "Result file (.csv or .xlsx)")
}
