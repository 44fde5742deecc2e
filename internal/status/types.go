// Package status models the observable state of reconciliation jobs.
//
// A job moves PENDING → PROGRESS (repeated, percent never decreasing) →
// SUCCESS or FAILURE. Each change is published as an immutable Snapshot to a
// Store; readers always get the latest snapshot and never wait on the writer.
package status

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending  State = "PENDING"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProgress, StateSuccess, StateFailure:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned for job ids the store has never seen (or has expired).
	ErrNotFound = errors.New("job not found")

	// ErrTerminal is returned when publishing over a SUCCESS or FAILURE snapshot.
	ErrTerminal = errors.New("job already finished")

	// ErrRegression is returned when a progress update lowers the percentage.
	ErrRegression = errors.New("progress cannot go backwards")

	// ErrInvalidSnapshot is returned for snapshots that violate the state model.
	ErrInvalidSnapshot = errors.New("invalid status snapshot")
)

// Failure describes why a job failed.
type Failure struct {
	// Type classifies the error, e.g. "IOError" or "ArtifactWriteError"
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Type, f.Message)
}

// Snapshot is the state of one job at one point in time.
type Snapshot struct {
	JobID   string `json:"job_id"`
	State   State  `json:"state"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`

	// Result references the output artifact (SUCCESS only)
	Result string `json:"result,omitempty"`

	// Error is set on FAILURE
	Error *Failure `json:"error,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Pending is the snapshot published when a job is submitted.
func Pending(jobID string) Snapshot {
	return Snapshot{JobID: jobID, State: StatePending, Message: "Pending"}
}

// Progress is an intermediate checkpoint.
func Progress(jobID string, percent int, message string) Snapshot {
	return Snapshot{JobID: jobID, State: StateProgress, Percent: percent, Message: message}
}

// Success is the terminal snapshot carrying the artifact reference.
func Success(jobID, result string) Snapshot {
	return Snapshot{JobID: jobID, State: StateSuccess, Percent: 100, Message: "Completed", Result: result}
}

// Failed is the terminal snapshot carrying the error.
func Failed(jobID string, f Failure) Snapshot {
	return Snapshot{JobID: jobID, State: StateFailure, Message: f.Message, Error: &f}
}

// Validate checks a snapshot on its own.
func (s Snapshot) Validate() error {
	switch {
	case s.JobID == "":
		return fmt.Errorf("%w: empty job id", ErrInvalidSnapshot)
	case !s.State.Valid():
		return fmt.Errorf("%w: unknown state %q", ErrInvalidSnapshot, s.State)
	case s.Percent < 0 || s.Percent > 100:
		return fmt.Errorf("%w: percent %d out of range", ErrInvalidSnapshot, s.Percent)
	case s.State == StateSuccess && s.Result == "":
		return fmt.Errorf("%w: success without result", ErrInvalidSnapshot)
	case s.State == StateFailure && s.Error == nil:
		return fmt.Errorf("%w: failure without error", ErrInvalidSnapshot)
	}
	return nil
}

// Transition checks that next may follow prev. prev is nil for a new job.
func Transition(prev *Snapshot, next Snapshot) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	if prev.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, prev.JobID, prev.State)
	}
	if next.State == StatePending && prev.State != StatePending {
		return fmt.Errorf("%w: %s cannot return to %s", ErrInvalidSnapshot, prev.JobID, StatePending)
	}
	if next.State == StateProgress && next.Percent < prev.Percent {
		return fmt.Errorf("%w: %d%% after %d%%", ErrRegression, next.Percent, prev.Percent)
	}
	return nil
}
