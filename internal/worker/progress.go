package worker

import (
	"context"
	"fmt"

	"github.com/saofleet/reconciler/internal/status"
)

// StatusWriter implements ProgressWriter on top of a status.Store.
// Publish failures are logged and returned, but a job never fails because
// its status could not be written.
type StatusWriter struct {
	ctx   context.Context
	store status.Store
	jobID string
	logFn func(level, msg string)
}

// NewStatusWriter creates a writer publishing snapshots for jobID.
func NewStatusWriter(ctx context.Context, store status.Store, jobID string, logFn func(level, msg string)) *StatusWriter {
	return &StatusWriter{
		ctx:   ctx,
		store: store,
		jobID: jobID,
		logFn: logFn,
	}
}

// WriteProgress publishes a PROGRESS snapshot.
func (w *StatusWriter) WriteProgress(percent int, message string) error {
	return w.publish(status.Progress(w.jobID, percent, message))
}

// WriteEnd publishes the SUCCESS snapshot.
func (w *StatusWriter) WriteEnd(result string) error {
	return w.publish(status.Success(w.jobID, result))
}

// WriteError publishes the FAILURE snapshot.
func (w *StatusWriter) WriteError(f status.Failure) error {
	return w.publish(status.Failed(w.jobID, f))
}

func (w *StatusWriter) publish(s status.Snapshot) error {
	err := w.store.Publish(w.ctx, s)
	if err != nil && w.logFn != nil {
		w.logFn("warning", fmt.Sprintf("   - Status update %s for job %s dropped: %v", s.State, w.jobID, err))
	}
	return err
}

// Ensure StatusWriter implements ProgressWriter
var _ ProgressWriter = (*StatusWriter)(nil)

