package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/saofleet/reconciler/internal/artifact"
	"github.com/saofleet/reconciler/internal/status"
	"github.com/saofleet/reconciler/internal/table"
	"github.com/saofleet/reconciler/internal/worker"
)

// ErrNotReady is returned by Result for jobs that have not succeeded.
var ErrNotReady = errors.New("result not ready")

// Upload is one input dataset supplied by a caller.
type Upload struct {
	// Name is the caller's file name; its extension selects the codec
	Name string
	Body io.Reader
}

// Service is the job facade used by the HTTP API and the CLI.
type Service struct {
	queue  worker.Queue
	status status.Store
	store  artifact.Store
	newID  func() string
}

// NewService wires a queue, a status store and an artifact store.
func NewService(queue worker.Queue, statusStore status.Store, store artifact.Store) *Service {
	return &Service{
		queue:  queue,
		status: statusStore,
		store:  store,
		newID:  uuid.NewString,
	}
}

// Submit stages both inputs, publishes PENDING and enqueues the job. It
// returns as soon as the job is queued.
func (s *Service) Submit(ctx context.Context, services, usages Upload) (string, error) {
	servicesFmt, err := table.FormatFromPath(services.Name)
	if err != nil {
		return "", &InputError{Err: fmt.Errorf("services: %w", err)}
	}
	usagesFmt, err := table.FormatFromPath(usages.Name)
	if err != nil {
		return "", &InputError{Err: fmt.Errorf("usages: %w", err)}
	}

	jobID := s.newID()
	servicesPath, err := s.store.Stage(ctx, jobID, "services"+servicesFmt.Extension(), services.Body)
	if err != nil {
		return "", fmt.Errorf("stage services: %w", err)
	}
	usagesPath, err := s.store.Stage(ctx, jobID, "usages"+usagesFmt.Extension(), usages.Body)
	if err != nil {
		s.store.Remove(servicesPath)
		return "", fmt.Errorf("stage usages: %w", err)
	}

	if err := s.status.Publish(ctx, status.Pending(jobID)); err != nil {
		s.store.Remove(servicesPath)
		s.store.Remove(usagesPath)
		return "", fmt.Errorf("publish status: %w", err)
	}

	payload := ReconcilePayload{
		ServicesPath: servicesPath,
		UsagesPath:   usagesPath,
		ServicesName: services.Name,
		UsagesName:   usages.Name,
	}
	job := &worker.Job{ID: jobID, Type: worker.JobTypeReconcile, Payload: payload.Map()}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.store.Remove(servicesPath)
		s.store.Remove(usagesPath)
		// A job that never reached the queue must not stay PENDING
		s.status.Publish(context.WithoutCancel(ctx), status.Failed(jobID, status.Failure{Type: FailureQueue, Message: err.Error()}))
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

// Status returns the latest snapshot of a job, or status.ErrNotFound.
func (s *Service) Status(ctx context.Context, jobID string) (status.Snapshot, error) {
	return s.status.Get(ctx, jobID)
}

// Result opens a succeeded job's artifact and returns it with its file name.
// It fails with status.ErrNotFound for unknown jobs and ErrNotReady otherwise.
func (s *Service) Result(ctx context.Context, jobID string) (io.ReadCloser, string, error) {
	snap, err := s.status.Get(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if snap.State != status.StateSuccess {
		return nil, "", fmt.Errorf("%w: job %s is %s", ErrNotReady, jobID, snap.State)
	}
	rc, err := s.store.Open(ctx, snap.Result)
	if err != nil {
		return nil, "", err
	}
	return rc, artifact.Name(snap.Result), nil
}
