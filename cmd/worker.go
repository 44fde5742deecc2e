// cmd/worker.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saofleet/reconciler/internal/status"
)

var (
	workerConcurrency int
	workerQueue       string
	workerGroup       string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Redis Streams worker pool for reconcile jobs",
	Long: `Consumes reconcile jobs from a Redis Stream through a consumer group and
publishes their status to Redis. Run as many worker processes as needed;
each job is delivered to exactly one of them.

Staged inputs and results must be reachable by the API and every worker:
use a shared storage.dir or the s3 storage backend.`,
	Example: `  # Consume with four concurrent jobs
  reconciler worker --concurrency 4

  # Custom queue and consumer group
  reconciler worker --queue jobs:v1:reconcile-eu --group eu-workers`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := newApp("worker")
	if err != nil {
		return err
	}
	defer a.Close()

	if workerQueue != "" {
		a.cfg.Redis.Queue = workerQueue
	}
	if workerGroup != "" {
		a.cfg.Redis.ConsumerGroup = workerGroup
	}
	concurrency := a.cfg.Worker.Concurrency
	if workerConcurrency > 0 {
		concurrency = workerConcurrency
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.artifactStore(ctx)
	if err != nil {
		return err
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return err
	}

	runner, err := a.newRunner(a.redisSource(client), status.NewRedisStore(client), store, concurrency)
	if err != nil {
		return err
	}
	stopHeartbeat := a.startHeartbeat(ctx, client, runner, concurrency)
	defer stopHeartbeat()

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "Jobs processed in parallel (default from config)")
	workerCmd.Flags().StringVar(&workerQueue, "queue", "", "Queue/stream name to consume from (default: jobs:v1:reconcile)")
	workerCmd.Flags().StringVar(&workerGroup, "group", "", "Consumer group name (default: reconcile-workers)")
}
