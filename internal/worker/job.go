// Package worker provides the job processing framework of the reconciler.
//
// It abstracts the differences between job sources (Redis Streams for
// multi-process deployments, an in-memory queue for single-process mode) and
// provides a common interface for job handlers.
//
// Architecture:
//
//	JobSource (redis/memory) → Runner → JobHandler → ProgressWriter → status.Store
//
// Each Runner goroutine loops:
//  1. Fetch next job (blocking)
//  2. Dispatch to the handler registered for its type
//  3. Publish the terminal status (SUCCESS or FAILURE)
//  4. Ack (success) or Nack (failure, dead-lettered, never retried)
package worker

import "time"

// Job represents a unit of work to be processed.
// This is the common job format used internally, regardless of source.
type Job struct {
	// ID uniquely identifies this job (the id handed back to the submitter)
	ID string

	// Type determines which handler processes this job
	Type string

	// Payload contains job-specific data
	Payload map[string]any

	// Source identifies where this job came from (for logging/debugging)
	Source string

	// MessageID is the source-specific message identifier (for ack/nack)
	MessageID string

	// Metadata contains additional source-specific information
	Metadata JobMetadata
}

// JobMetadata contains optional job metadata.
type JobMetadata struct {
	// CreatedAt is when the job was submitted
	CreatedAt time.Time
}

// JobResult contains the outcome of job processing.
type JobResult struct {
	// Status is the job outcome (success, failure)
	Status JobStatus

	// Artifact references the job's output (required on success)
	Artifact string

	// Output is handler-specific summary data
	Output map[string]any

	// Error contains error details if status is not success
	Error error

	// Duration is how long the job took to process
	Duration time.Duration
}

// JobStatus represents the outcome of job processing.
type JobStatus string

const (
	// JobStatusSuccess indicates the job completed successfully
	JobStatusSuccess JobStatus = "success"

	// JobStatusFailure indicates the job failed (never retried)
	JobStatusFailure JobStatus = "failure"
)

// JobTypeReconcile is the only job type the reconciler runs.
const JobTypeReconcile = "reconcile"
