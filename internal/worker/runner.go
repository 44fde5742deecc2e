package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saofleet/reconciler/internal/history"
	"github.com/saofleet/reconciler/internal/metrics"
	"github.com/saofleet/reconciler/internal/status"
)

// Runner orchestrates job processing from a source through handlers.
type Runner struct {
	source   JobSource
	handlers []JobHandler
	config   RunnerConfig

	// Optional integrations (set via config or WithXxx methods)
	progressWriterFactory func(ctx context.Context, job *Job) ProgressWriter
	activityFn            func(level, msg string)
	jobRecordFn           func(record history.Record)
	metrics               metrics.Sink
	classify              func(err error) status.Failure

	// Job counters
	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// RunnerStats is a point-in-time view of the runner's job counters.
type RunnerStats struct {
	Active    int64 // jobs being executed now
	Processed int64 // jobs that succeeded
	Failed    int64 // jobs that failed
}

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	// WorkerID identifies this worker instance
	WorkerID string

	// Concurrency is the number of jobs processed in parallel (default: 1)
	Concurrency int

	// Status receives every job's progress and terminal snapshots
	Status status.Store

	// ActivityFn is called for log messages (if nil, prints to stdout)
	ActivityFn func(level, msg string)

	// JobRecordFn is called when a job completes (for the history ledger)
	JobRecordFn func(record history.Record)

	// Metrics receives one observation per finished job
	Metrics metrics.Sink

	// Classify turns a job error into the published failure (default: DefaultClassify)
	Classify func(err error) status.Failure

	// TerminalAttempts bounds the SUCCESS/FAILURE publish attempts (default: 5)
	TerminalAttempts int

	// TerminalBackoff is the first delay between those attempts, doubled
	// after each failure (default: 500ms)
	TerminalBackoff time.Duration
}

// NewRunner creates a new job runner.
func NewRunner(source JobSource, handlers []JobHandler, config RunnerConfig) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.TerminalAttempts <= 0 {
		config.TerminalAttempts = 5
	}
	if config.TerminalBackoff <= 0 {
		config.TerminalBackoff = 500 * time.Millisecond
	}
	r := &Runner{
		source:      source,
		handlers:    handlers,
		config:      config,
		activityFn:  config.ActivityFn,
		jobRecordFn: config.JobRecordFn,
		metrics:     config.Metrics,
		classify:    config.Classify,
	}
	if r.metrics == nil {
		r.metrics = metrics.NopSink{}
	}
	if r.classify == nil {
		r.classify = DefaultClassify
	}
	return r
}

// log outputs a message - uses activity callback if set, otherwise prints to stdout/stderr
func (r *Runner) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if r.activityFn != nil {
		r.activityFn(level, msg)
	} else {
		if level == "error" || level == "warning" {
			fmt.Fprintf(os.Stderr, "%s\n", msg)
		} else {
			fmt.Printf("%s\n", msg)
		}
	}
}

// recordJob records a job completion in the history ledger
func (r *Runner) recordJob(record history.Record) {
	if r.jobRecordFn != nil {
		r.jobRecordFn(record)
	}
}

// WithProgressWriterFactory sets a factory for creating progress writers.
// If not set, a StatusWriter on config.Status is used, or a
// NoOpProgressWriter when no store is configured.
func (r *Runner) WithProgressWriterFactory(factory func(ctx context.Context, job *Job) ProgressWriter) *Runner {
	r.progressWriterFactory = factory
	return r
}

func (r *Runner) progressWriter(ctx context.Context, job *Job) ProgressWriter {
	switch {
	case r.progressWriterFactory != nil:
		return r.progressWriterFactory(ctx, job)
	case r.config.Status != nil:
		return NewStatusWriter(ctx, r.config.Status, job.ID, r.activityFn)
	default:
		return &NoOpProgressWriter{}
	}
}

// Run starts the job processing loop with config.Concurrency workers.
// It blocks until ctx is cancelled, then waits for in-flight jobs to finish.
// Jobs are never interrupted once picked up.
func (r *Runner) Run(ctx context.Context) error {
	r.log("info", "Starting worker (%s)", r.source.Name())
	if err := r.source.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", r.source.Name(), err)
	}
	defer r.source.Close()

	r.log("info", "   - Worker ID: %s", r.config.WorkerID)
	r.log("info", "   - Source: %s", r.source.Name())
	r.log("info", "   - Handlers: %d registered", len(r.handlers))
	r.log("info", "   - Concurrency: %d", r.config.Concurrency)
	r.log("success", "Worker started, listening for jobs...")

	var wg sync.WaitGroup
	for i := 0; i < r.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx)
		}()
	}
	wg.Wait()

	r.log("info", "Worker shutdown complete")
	return nil
}

// loop fetches and processes jobs until ctx is cancelled, with exponential
// backoff on source errors.
func (r *Runner) loop(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log("warning", "Error fetching job: %v (retry in %s)", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			// Exponential backoff up to max
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// Reset backoff on success
		backoff = time.Second

		if job == nil {
			continue // No job available, loop again
		}

		// Shutdown must not abandon a job halfway through its status updates
		r.processJob(context.WithoutCancel(ctx), job)
	}
}

// processJob dispatches a job to the appropriate handler.
func (r *Runner) processJob(ctx context.Context, job *Job) {
	r.log("info", "Received job %s (type: %s)", job.ID, job.Type)
	r.active.Add(1)
	defer r.active.Add(-1)
	startTime := time.Now()
	progress := r.progressWriter(ctx, job)

	// Find handler
	var handler JobHandler
	for _, h := range r.handlers {
		if h.CanHandle(job.Type) {
			handler = h
			break
		}
	}

	if handler == nil {
		r.fail(ctx, job, progress, startTime, nil, fmt.Errorf("no handler for job type: %s", job.Type))
		return
	}

	result, err := handler.Execute(ctx, job, progress)
	if err == nil {
		switch {
		case result == nil:
			err = errors.New("handler returned no result")
		case result.Status == JobStatusFailure:
			err = result.Error
			if err == nil {
				err = errors.New("job failed")
			}
		case result.Artifact == "":
			err = errors.New("job produced no result artifact")
		}
	}
	if err != nil {
		r.fail(ctx, job, progress, startTime, result, err)
		return
	}

	endTime := time.Now()
	result.Duration = endTime.Sub(startTime)

	// Success
	if !r.publishTerminal(ctx, job, func() error { return progress.WriteEnd(result.Artifact) }) {
		return
	}
	r.processed.Add(1)
	r.log("success", "Job %s completed (%v)", job.ID, result.Duration)
	r.recordJob(r.buildRecord(job, "success", startTime, endTime, result, nil))
	r.observe(status.StateSuccess, result.Duration, result)
	if err := r.source.Ack(ctx, job); err != nil {
		r.log("warning", "Failed to ack job %s: %v", job.ID, err)
	}
}

// fail publishes the FAILURE snapshot, records the job and nacks it.
func (r *Runner) fail(ctx context.Context, job *Job, progress ProgressWriter, started time.Time, result *JobResult, err error) {
	endTime := time.Now()
	duration := endTime.Sub(started)
	failure := r.classify(err)
	if !r.publishTerminal(ctx, job, func() error { return progress.WriteError(failure) }) {
		return
	}
	r.failed.Add(1)

	r.log("error", "Job %s failed (%v): %v", job.ID, duration, failure)
	r.recordJob(r.buildRecord(job, "failed", started, endTime, result, &failure))
	r.observe(status.StateFailure, duration, nil)
	if nerr := r.source.Nack(ctx, job, err); nerr != nil {
		r.log("warning", "Failed to nack job %s: %v", job.ID, nerr)
	}
}

// publishTerminal retries the SUCCESS or FAILURE publish until it lands.
// When every attempt fails the message is left unacked on the source, so the
// job is neither counted nor dead-lettered while its status is non-terminal.
func (r *Runner) publishTerminal(ctx context.Context, job *Job, publish func() error) bool {
	delay := r.config.TerminalBackoff
	var err error
retry:
	for attempt := 1; ; attempt++ {
		err = publish()
		if err == nil || errors.Is(err, status.ErrTerminal) {
			return true
		}
		if errors.Is(err, status.ErrInvalidSnapshot) || attempt >= r.config.TerminalAttempts {
			break
		}
		select {
		case <-ctx.Done():
			break retry
		case <-time.After(delay):
			delay *= 2
		}
	}
	r.log("error", "Job %s finished but its final status was not published, leaving it unacked: %v", job.ID, err)
	return false
}

func (r *Runner) observe(state status.State, d time.Duration, result *JobResult) {
	obs := metrics.JobObservation{State: string(state), Duration: d}
	if result != nil && result.Output != nil {
		obs.Usages = intFromOutput(result.Output, "usages")
		obs.Unmatched = intFromOutput(result.Output, "unmatched")
	}
	if err := r.metrics.RecordJob(obs); err != nil {
		r.log("warning", "Failed to record metrics for job: %v", err)
	}
}

// DefaultClassify keeps failures that already carry a type and labels
// everything else as a plain "Error".
func DefaultClassify(err error) status.Failure {
	var f status.Failure
	if errors.As(err, &f) {
		return f
	}
	return status.Failure{Type: "Error", Message: err.Error()}
}

// buildRecord constructs a history.Record from job execution context.
func (r *Runner) buildRecord(job *Job, outcome string, started, completed time.Time, result *JobResult, failure *status.Failure) history.Record {
	rec := history.Record{
		JobID:       job.ID,
		JobType:     job.Type,
		WorkerID:    r.config.WorkerID,
		Status:      outcome,
		StartedAt:   started,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
	}

	if result != nil {
		rec.Artifact = result.Artifact
		if result.Output != nil {
			rec.Services = intFromOutput(result.Output, "services")
			rec.Usages = intFromOutput(result.Output, "usages")
			rec.Unmatched = intFromOutput(result.Output, "unmatched")
		}
	}

	if failure != nil {
		rec.ErrorType = failure.Type
		msg := failure.Message
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
		rec.ErrorMessage = msg
	}

	return rec
}

// intFromOutput extracts an int64 value from a map[string]any.
func intFromOutput(m map[string]any, key string) int64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		if n != n || n > float64(math.MaxInt64) || n < float64(math.MinInt64) { // NaN or overflow
			return 0
		}
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	return 0
}

// Stats returns the current job counters. Safe for concurrent use.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Active:    r.active.Load(),
		Processed: r.processed.Load(),
		Failed:    r.failed.Load(),
	}
}

// WorkerID returns the configured worker identifier.
func (r *Runner) WorkerID() string {
	return r.config.WorkerID
}

// RegisterHandler adds a handler to the runner.
func (r *Runner) RegisterHandler(handler JobHandler) {
	r.handlers = append(r.handlers, handler)
}
