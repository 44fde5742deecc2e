package jobs

import (
	"bytes"
	"context"
	"fmt"

	"github.com/saofleet/reconciler/internal/artifact"
	"github.com/saofleet/reconciler/internal/reconcile"
	"github.com/saofleet/reconciler/internal/table"
	"github.com/saofleet/reconciler/internal/worker"
)

// ReconcileHandler runs reconcile jobs.
type ReconcileHandler struct {
	Engine *reconcile.Engine
	Store  artifact.Store

	// Format of the result artifact
	Format table.Format

	// KeepInputs leaves staged inputs on disk after the job
	KeepInputs bool

	// LogFn is an optional callback for logging (if nil, prints to stdout)
	LogFn func(level, msg string)
}

func (h *ReconcileHandler) log(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if h.LogFn != nil {
		h.LogFn(level, msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

// CanHandle returns true if this handler can process the given job type.
func (h *ReconcileHandler) CanHandle(jobType string) bool {
	return jobType == worker.JobTypeReconcile
}

// Execute loads both inputs, reconciles them and stores the uncovered usage
// rows. Progress is reported at 25 (inputs loaded), 50 (normalization
// complete) and 75 (result being written); the runner publishes SUCCESS.
// Nothing is stored when any step fails.
func (h *ReconcileHandler) Execute(ctx context.Context, job *worker.Job, progress worker.ProgressWriter) (*worker.JobResult, error) {
	payload, err := ParsePayload(job.Payload)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	if !h.KeepInputs {
		defer h.removeInputs(payload)
	}

	services, err := table.ReadFile(payload.ServicesPath)
	if err != nil {
		return nil, &InputError{Err: fmt.Errorf("read services: %w", err)}
	}
	usages, err := table.ReadFile(payload.UsagesPath)
	if err != nil {
		return nil, &InputError{Err: fmt.Errorf("read usages: %w", err)}
	}
	progress.WriteProgress(25, "inputs loaded")

	svc, err := h.Engine.Services(services)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	use, err := h.Engine.Usages(usages)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	progress.WriteProgress(50, "normalization complete")

	res := reconcile.Reconcile(svc, use)
	res.Columns = usages.Columns
	progress.WriteProgress(75, "writing result file")

	ref, err := h.writeResult(ctx, job.ID, res)
	if err != nil {
		return nil, &ArtifactWriteError{Err: err}
	}

	sum := res.Summary
	h.log("info", "   - Job %s: %d/%d usages outside service (%d vehicles, %d invalid times)",
		job.ID, sum.Unmatched, sum.Usages, sum.Vehicles, sum.InvalidUsageTimes)

	return &worker.JobResult{
		Status:   worker.JobStatusSuccess,
		Artifact: ref,
		Output: map[string]any{
			"result":              ref,
			"services":            sum.Services,
			"usages":              sum.Usages,
			"matched":             sum.Matched,
			"unmatched":           sum.Unmatched,
			"vehicles":            sum.Vehicles,
			"invalid_usage_times": sum.InvalidUsageTimes,
			"invalid_intervals":   sum.InvalidIntervals,
			"inverted_intervals":  sum.InvertedIntervals,
		},
	}, nil
}

// writeResult encodes the whole artifact before storing it, so a failed
// encode leaves nothing behind.
func (h *ReconcileHandler) writeResult(ctx context.Context, jobID string, res reconcile.Result) (string, error) {
	format := h.Format
	if format == "" {
		format = table.FormatXLSX
	}
	var buf bytes.Buffer
	if err := table.Write(&buf, format, res.Table()); err != nil {
		return "", err
	}
	return h.Store.Put(ctx, jobID, ResultName+format.Extension(), &buf)
}

func (h *ReconcileHandler) removeInputs(p ReconcilePayload) {
	for _, path := range []string{p.ServicesPath, p.UsagesPath} {
		if err := h.Store.Remove(path); err != nil {
			h.log("warning", "   - Failed to remove input %s: %v", path, err)
		}
	}
}

// Ensure ReconcileHandler implements worker.JobHandler
var _ worker.JobHandler = (*ReconcileHandler)(nil)
