// cmd/app.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saofleet/reconciler/internal/artifact"
	"github.com/saofleet/reconciler/internal/config"
	"github.com/saofleet/reconciler/internal/heartbeat"
	"github.com/saofleet/reconciler/internal/history"
	"github.com/saofleet/reconciler/internal/jobs"
	"github.com/saofleet/reconciler/internal/logging"
	"github.com/saofleet/reconciler/internal/metrics"
	redisclient "github.com/saofleet/reconciler/internal/redis"
	"github.com/saofleet/reconciler/internal/reconcile"
	"github.com/saofleet/reconciler/internal/status"
	"github.com/saofleet/reconciler/internal/worker"
)

// app holds the components shared by the commands. It is built once per
// command invocation from the loaded configuration.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	logFn  func(level, msg string)

	closers []func() error
}

// newApp loads the configuration and builds the logger.
func newApp(component string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Log.Level = "debug"
	}
	logger := logging.New(logging.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: component,
	})
	Debug("config: storage=%s dir=%s format=%s queue=%s", cfg.Storage.Backend, cfg.Storage.Dir, cfg.Storage.Format, cfg.Redis.Queue)
	return &app{cfg: cfg, logger: logger, logFn: logging.LogFn(logger)}, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases everything opened through the app, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// artifactStore opens the configured artifact backend.
func (a *app) artifactStore(ctx context.Context) (artifact.Store, error) {
	spool, err := artifact.NewFileStore(a.cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}
	if a.cfg.Storage.Backend != "s3" {
		return spool, nil
	}
	s3 := a.cfg.Storage.S3
	store, err := artifact.DialS3(ctx, artifact.S3Config{
		Endpoint:  s3.Endpoint,
		Bucket:    s3.Bucket,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
		UseSSL:    s3.UseSSL,
		Region:    s3.Region,
	}, spool)
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}
	return store, nil
}

// redisClient connects the shared Redis client used for the queue and the
// status store.
func (a *app) redisClient(ctx context.Context) (*redisclient.Client, error) {
	rc := a.cfg.Redis
	client := redisclient.NewClient(redisclient.ClientConfig{
		URL:           rc.URL,
		Password:      rc.Password,
		QueueName:     rc.Queue,
		ConsumerGroup: rc.ConsumerGroup,
		BlockMs:       rc.BlockMs,
		StatusTTL:     rc.StatusTTL,
	})
	if err := client.Connect(ctx, rc.URL, rc.Password); err != nil {
		return nil, err
	}
	a.onClose(client.Close)
	return client, nil
}

// redisSource wraps the shared client as the job queue.
func (a *app) redisSource(client *redisclient.Client) *worker.RedisSource {
	rc := a.cfg.Redis
	return worker.NewRedisSourceWithClient(client, worker.RedisSourceConfig{
		URL:           rc.URL,
		QueueName:     rc.Queue,
		ConsumerGroup: rc.ConsumerGroup,
		BlockMs:       rc.BlockMs,
		StatusTTL:     rc.StatusTTL,
		LogFn:         a.logFn,
	})
}

// historyStore opens the job ledger, or returns nil when it is disabled.
func (a *app) historyStore() (*history.Store, error) {
	if a.cfg.History.Path == "" {
		return nil, nil
	}
	store, err := history.OpenStore(a.cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job history: %w", err)
	}
	a.onClose(store.Close)
	return store, nil
}

// newRunner builds a runner processing reconcile jobs from source, with
// metrics and (when enabled) the history ledger wired in.
func (a *app) newRunner(source worker.JobSource, statusStore status.Store, store artifact.Store, concurrency int) (*worker.Runner, error) {
	sink, err := metrics.NewPromSink()
	if err != nil {
		return nil, err
	}
	ledger, err := a.historyStore()
	if err != nil {
		return nil, err
	}

	var recordFn func(history.Record)
	if ledger != nil {
		recordFn = func(r history.Record) {
			if err := ledger.Insert(r); err != nil {
				a.logger.Warn().Err(err).Str("job_id", r.JobID).Msg("failed to record job history")
			}
		}
	}

	handler := &jobs.ReconcileHandler{
		Engine:     reconcile.NewEngine(a.cfg.EngineConfig()),
		Store:      store,
		Format:     a.cfg.ResultFormat(),
		KeepInputs: a.cfg.Storage.KeepInputs,
		LogFn:      a.logFn,
	}
	return worker.NewRunner(source, []worker.JobHandler{handler}, worker.RunnerConfig{
		WorkerID:    fmt.Sprintf("reconciler-%s", uuid.New().String()[:8]),
		Concurrency: concurrency,
		Status:      statusStore,
		ActivityFn:  a.logFn,
		JobRecordFn: recordFn,
		Metrics:     sink,
		Classify:    jobs.Classify,
	}), nil
}

// startHeartbeat publishes the runner's presence until the returned stop
// function is called. stop waits for the publisher to remove its key.
func (a *app) startHeartbeat(ctx context.Context, client *redisclient.Client, runner *worker.Runner, concurrency int) (stop func()) {
	if a.cfg.Worker.HeartbeatInterval <= 0 {
		return func() {}
	}
	pub, err := heartbeat.NewPublisher(client.Redis(), heartbeat.PublisherConfig{
		WorkerID:    runner.WorkerID(),
		Queue:       a.cfg.Redis.Queue,
		Concurrency: concurrency,
		Interval:    a.cfg.Worker.HeartbeatInterval,
		Stats: func() heartbeat.Stats {
			s := runner.Stats()
			return heartbeat.Stats{Active: s.Active, Processed: s.Processed, Failed: s.Failed}
		},
		LogFn: a.logFn,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("heartbeat disabled")
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pub.Start(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
