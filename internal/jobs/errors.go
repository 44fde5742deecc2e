package jobs

import (
	"errors"
	"reflect"
	"unicode"

	"github.com/saofleet/reconciler/internal/status"
)

// Failure types published on FAILURE snapshots.
const (
	FailureIO            = "IOError"
	FailureArtifactWrite = "ArtifactWriteError"
	FailureQueue         = "QueueError"
)

// InputError wraps anything that stops the inputs from being used: an
// unreadable file, an unsupported format, or a missing column.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// ArtifactWriteError wraps a failure to store the result artifact.
type ArtifactWriteError struct {
	Err error
}

func (e *ArtifactWriteError) Error() string { return "write result: " + e.Err.Error() }
func (e *ArtifactWriteError) Unwrap() error { return e.Err }

// Classify maps a job error to the failure published in its status.
// Unparseable timestamps never reach here: they become null timestamps.
func Classify(err error) status.Failure {
	var f status.Failure
	var input *InputError
	var write *ArtifactWriteError
	switch {
	case errors.As(err, &f):
		return f
	case errors.As(err, &input):
		return status.Failure{Type: FailureIO, Message: err.Error()}
	case errors.As(err, &write):
		return status.Failure{Type: FailureArtifactWrite, Message: err.Error()}
	}
	return status.Failure{Type: typeName(err), Message: err.Error()}
}

// typeName names the innermost error's exported type, or "Error".
func typeName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" || !unicode.IsUpper(rune(name[0])) {
		return "Error"
	}
	return name
}
