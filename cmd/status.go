// cmd/status.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saofleet/reconciler/internal/status"
)

var statusFollow bool

var statusCmd = &cobra.Command{
	Use:     "status JOB_ID",
	Aliases: []string{"st"},
	Short:   "Show the status of a queued job",
	Example: `  # Latest snapshot
  reconciler status 3f1c2d9e-...

  # Stream updates until SUCCESS or FAILURE
  reconciler status 3f1c2d9e-... --follow`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp("status")
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.redisClient(context.Background())
	if err != nil {
		return err
	}
	store := status.NewRedisStore(client)

	if statusFollow {
		return follow(cmd, store, args[0])
	}
	snap, err := store.Get(context.Background(), args[0])
	if errors.Is(err, status.ErrNotFound) {
		return fmt.Errorf("job %s not found (unknown or expired)", args[0])
	}
	if err != nil {
		return err
	}
	printSnapshot(cmd.OutOrStdout(), snap)
	return nil
}

// followStore is a status store that can push updates.
type followStore interface {
	status.Store
	status.Watcher
}

// follow prints snapshots of jobID until it reaches a terminal state. It
// subscribes before reading the current snapshot so no update is missed.
func follow(cmd *cobra.Command, store followStore, jobID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates, err := store.Watch(ctx, jobID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	current, err := store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	printSnapshot(out, current)

	for !current.State.Terminal() {
		snap, ok := <-updates
		if !ok {
			return ctx.Err()
		}
		// Skip updates older than (or equal to) the one already printed
		same := snap.State == current.State && snap.Percent == current.Percent
		if same || status.Transition(&current, snap) != nil {
			continue
		}
		current = snap
		printSnapshot(out, current)
	}
	if current.State == status.StateFailure {
		return fmt.Errorf("job %s failed", jobID)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Stream status updates until the job finishes")
}
