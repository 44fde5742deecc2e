// cmd/output.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/saofleet/reconciler/internal/history"
	"github.com/saofleet/reconciler/internal/reconcile"
	"github.com/saofleet/reconciler/internal/status"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
	noColor     bool // Flag to disable color
)

// printSummary writes the counters of one reconciliation.
func printSummary(out io.Writer, s reconcile.Summary, resultPath string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	headerColor.Fprintln(w, "--- Reconciliation summary ---")
	fmt.Fprintf(w, "  %s:\t%d (%d vehicles)\n", labelColor.Sprint("Service intervals"), s.Services, s.Vehicles)
	fmt.Fprintf(w, "  %s:\t%d\n", labelColor.Sprint("Usage rows"), s.Usages)
	fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Covered"), goodColor.Sprint(s.Matched))
	unmatched := goodColor.Sprint(s.Unmatched)
	if s.Unmatched > 0 {
		unmatched = badColor.Sprint(s.Unmatched)
	}
	fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Without service"), unmatched)

	if s.InvalidUsageTimes > 0 {
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Unreadable usage times"), warnColor.Sprint(s.InvalidUsageTimes))
	}
	if s.InvalidIntervals > 0 {
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Unreadable intervals"), warnColor.Sprint(s.InvalidIntervals))
	}
	if s.InvertedIntervals > 0 {
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Intervals ending before start"), warnColor.Sprint(s.InvertedIntervals))
	}
	if resultPath != "" {
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Result"), resultPath)
	}
}

// stateColor picks the color a job state is printed with.
func stateColor(s status.State) *color.Color {
	switch s {
	case status.StateSuccess:
		return goodColor
	case status.StateFailure:
		return badColor
	case status.StateProgress:
		return warnColor
	}
	return labelColor
}

// printSnapshot writes one status line.
func printSnapshot(out io.Writer, snap status.Snapshot) {
	line := fmt.Sprintf("%-8s %3d%%", snap.State, snap.Percent)
	switch {
	case snap.Error != nil:
		fmt.Fprintf(out, "%s  %s\n", stateColor(snap.State).Sprint(line), snap.Error)
	case snap.Result != "":
		fmt.Fprintf(out, "%s  %s\n", stateColor(snap.State).Sprint(line), snap.Result)
	default:
		fmt.Fprintf(out, "%s  %s\n", stateColor(snap.State).Sprint(line), snap.Message)
	}
}

// printHistory writes the ledger as a table.
func printHistory(out io.Writer, records []history.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "JOB\tSTATUS\tCOMPLETED\tDURATION\tUSAGES\tUNMATCHED\tDETAIL")
	for _, r := range records {
		outcome := goodColor.Sprint(r.Status)
		detail := r.Artifact
		if r.Status != "success" {
			outcome = badColor.Sprint(r.Status)
			detail = r.ErrorType
			if r.ErrorMessage != "" {
				detail += ": " + r.ErrorMessage
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.JobID,
			outcome,
			r.CompletedAt.Local().Format("2006-01-02 15:04:05"),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			r.Usages,
			r.Unmatched,
			detail,
		)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	cobra.OnInitialize(func() {
		if noColor {
			color.NoColor = true
		}
	})
}
