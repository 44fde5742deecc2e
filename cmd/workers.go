// cmd/workers.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saofleet/reconciler/internal/heartbeat"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List workers with a live heartbeat in Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("workers")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		client, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		workers, err := heartbeat.List(ctx, client.Redis())
		if err != nil {
			return err
		}
		if len(workers) == 0 {
			warnColor.Fprintln(cmd.OutOrStdout(), "No live workers.")
			return nil
		}
		printWorkers(cmd.OutOrStdout(), workers)
		return nil
	},
}

func printWorkers(out io.Writer, workers []heartbeat.WorkerStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "WORKER\tHOST\tQUEUE\tBUSY\tDONE\tFAILED\tLAST SEEN")
	for _, ws := range workers {
		busy := fmt.Sprintf("%d/%d", ws.Active, ws.Concurrency)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ws.WorkerID,
			ws.Hostname,
			ws.Queue,
			busy,
			goodColor.Sprint(ws.Processed),
			badColor.Sprint(ws.Failed),
			ws.Timestamp,
		)
	}
}

func init() {
	rootCmd.AddCommand(workersCmd)
}
