// cmd/submit.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/saofleet/reconciler/internal/jobs"
	"github.com/saofleet/reconciler/internal/status"
)

var submitFollow bool

var submitCmd = &cobra.Command{
	Use:   "submit SERVICES USAGES",
	Short: "Queue a reconcile job on Redis and print its id",
	Long: `Stages both files in the configured artifact store, publishes the job as
PENDING and appends it to the Redis queue. A 'reconciler worker' (or a
'reconciler serve --mode redis' with workers) picks it up.`,
	Example: `  reconciler submit servicios.xlsx usos.xlsx
  reconciler submit servicios.xlsx usos.xlsx --follow`,
	Args: cobra.ExactArgs(2),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	a, err := newApp("submit")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	store, err := a.artifactStore(ctx)
	if err != nil {
		return err
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return err
	}
	statusStore := status.NewRedisStore(client)
	svc := jobs.NewService(a.redisSource(client), statusStore, store)

	services, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer services.Close()
	usages, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer usages.Close()

	jobID, err := svc.Submit(ctx,
		jobs.Upload{Name: filepath.Base(args[0]), Body: services},
		jobs.Upload{Name: filepath.Base(args[1]), Body: usages},
	)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), jobID)

	if !submitFollow {
		return nil
	}
	return follow(cmd, statusStore, jobID)
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().BoolVarP(&submitFollow, "follow", "f", false, "Stream status updates until the job finishes")
}
