// Package history keeps a local SQLite ledger of finished reconciliation jobs.
//
// The ledger holds operational metadata only (timing, counts, outcome); the
// result rows themselves live in the job's artifact.
package history

import "time"

// Record captures the outcome of a single job.
type Record struct {
	// Database ID (set after insert)
	ID int64

	// Job identification
	JobID    string
	JobType  string
	WorkerID string

	// Outcome
	Status       string // "success", "failed"
	ErrorType    string
	ErrorMessage string
	Artifact     string

	// Timing
	StartedAt   time.Time
	CompletedAt time.Time
	DurationMs  int64

	// Row counts (populated by the reconcile handler)
	Services  int64
	Usages    int64
	Unmatched int64
}
