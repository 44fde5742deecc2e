package worker

import "context"

// JobSource defines the interface for fetching jobs from a queue/stream.
type JobSource interface {
	// Name returns the source identifier (e.g., "redis", "memory")
	Name() string

	// Connect establishes connection to the job source.
	// This should be called before Next().
	Connect(ctx context.Context) error

	// Next blocks until a job is available or context is cancelled.
	// Returns nil job (no error) if no job is available within timeout.
	// The job is "claimed" by this worker and should be Ack'd or Nack'd.
	Next(ctx context.Context) (*Job, error)

	// Ack acknowledges successful job completion.
	// The job will be removed from the queue.
	Ack(ctx context.Context, job *Job) error

	// Nack indicates job failure. The job is removed from the queue and
	// recorded for inspection; it is never redelivered.
	Nack(ctx context.Context, job *Job, err error) error

	// Close cleanly disconnects from the job source.
	Close() error
}

// Queue is the submitting side of a job source.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
}
