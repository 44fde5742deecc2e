package worker

import (
	"context"

	"github.com/saofleet/reconciler/internal/status"
)

// JobHandler processes jobs of a specific type.
// Handlers are registered with the Runner and dispatched based on CanHandle().
type JobHandler interface {
	// CanHandle returns true if this handler can process the given job type.
	CanHandle(jobType string) bool

	// Execute processes the job, reporting intermediate checkpoints through
	// progress. The terminal status is published by the Runner from the
	// returned result, never by the handler.
	Execute(ctx context.Context, job *Job, progress ProgressWriter) (*JobResult, error)
}

// ProgressWriter publishes a job's status as it runs.
type ProgressWriter interface {
	// WriteProgress records an intermediate checkpoint (0-100).
	WriteProgress(percent int, message string) error

	// WriteEnd signals successful completion with the artifact reference.
	WriteEnd(result string) error

	// WriteError signals job failure.
	WriteError(f status.Failure) error
}

// NoOpProgressWriter is a ProgressWriter that does nothing.
type NoOpProgressWriter struct{}

func (n *NoOpProgressWriter) WriteProgress(percent int, message string) error { return nil }
func (n *NoOpProgressWriter) WriteEnd(result string) error                    { return nil }
func (n *NoOpProgressWriter) WriteError(f status.Failure) error               { return nil }

// Ensure NoOpProgressWriter implements ProgressWriter
var _ ProgressWriter = (*NoOpProgressWriter)(nil)
