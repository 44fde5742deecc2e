// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/saofleet/reconciler/internal/api"
	"github.com/saofleet/reconciler/internal/jobs"
	"github.com/saofleet/reconciler/internal/metrics"
	redisclient "github.com/saofleet/reconciler/internal/redis"
	"github.com/saofleet/reconciler/internal/status"
	"github.com/saofleet/reconciler/internal/worker"
)

var (
	serveMode    string
	serveAddr    string
	serveWorkers int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and optionally in-process workers)",
	Long: `Serves the upload, status and download endpoints.

Modes:
  memory  Jobs are queued in-process and run by --workers goroutines. Job
          status lives in memory and is lost on restart.
  redis   Jobs are queued on a Redis Stream and status is kept in Redis, so
          separate 'reconciler worker' processes can pick them up. Set
          --workers 0 to run the API alone.`,
	Example: `  # Single process, two in-process workers
  reconciler serve --workers 2

  # API only, workers run elsewhere
  reconciler serve --mode redis --workers 0`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveMode != "memory" && serveMode != "redis" {
		return fmt.Errorf("--mode must be 'memory' or 'redis'")
	}

	a, err := newApp("api")
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("addr") {
		a.cfg.Server.Addr = serveAddr
	}
	workers := a.cfg.Worker.Concurrency
	if cmd.Flags().Changed("workers") {
		workers = serveWorkers
	}
	if serveMode == "memory" && workers <= 0 {
		return fmt.Errorf("memory mode needs at least one worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.artifactStore(ctx)
	if err != nil {
		return err
	}

	var (
		source      worker.JobSource
		queue       worker.Queue
		statusStore status.Store
		client      *redisclient.Client
	)
	switch serveMode {
	case "memory":
		mem := worker.NewMemorySource(0)
		source, queue = mem, mem
		statusStore = status.NewMemoryStore()
	case "redis":
		client, err = a.redisClient(ctx)
		if err != nil {
			return err
		}
		rs := a.redisSource(client)
		source, queue = rs, rs
		statusStore = status.NewRedisStore(client)
	}

	var wg sync.WaitGroup
	if workers > 0 {
		runner, err := a.newRunner(source, statusStore, store, workers)
		if err != nil {
			return err
		}
		if client != nil {
			stopHeartbeat := a.startHeartbeat(ctx, client, runner, workers)
			defer stopHeartbeat()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil {
				a.logger.Error().Err(err).Msg("worker stopped")
				stop()
			}
		}()
	}

	server := api.NewServer(api.ServerConfig{
		Addr:           a.cfg.Server.Addr,
		Version:        Version,
		MaxUploadMB:    a.cfg.Server.MaxUploadMB,
		RateLimitRPS:   a.cfg.Server.RateLimitRPS,
		RateLimitBurst: a.cfg.Server.RateLimitBurst,
		Metrics:        metrics.Handler(prometheus.DefaultGatherer),
		LogFn:          a.logFn,
	}, jobs.NewService(queue, statusStore, store))

	a.logger.Info().Str("mode", serveMode).Int("workers", workers).Str("addr", a.cfg.Server.Addr).Msg("starting reconciler")
	err = server.Start(ctx)
	stop()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	a.logger.Info().Msg("shutdown complete")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveMode, "mode", "memory", "Queue mode: 'memory' (in-process) or 'redis' (Redis Streams)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, or :$PORT)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "In-process workers (default from config worker.concurrency)")
}
