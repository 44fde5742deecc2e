// Package artifact stores the files a job reads and writes: the staged input
// tables and the single result artifact each job produces.
//
// Artifacts are addressed by reference strings (file:// or s3:// URLs) so
// that the status snapshot can name a result without embedding it.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned by Open when the referenced artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidRef is returned for references the store cannot resolve.
	ErrInvalidRef = errors.New("invalid artifact reference")

	// ErrInvalidName is returned for empty or path-like file names.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Store persists job files.
type Store interface {
	// Stage saves an uploaded input and returns a local path a worker can read.
	Stage(ctx context.Context, jobID, name string, r io.Reader) (string, error)

	// Put saves a job's result and returns its reference.
	Put(ctx context.Context, jobID, name string, r io.Reader) (string, error)

	// Open reads the artifact behind ref.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Remove deletes a staged input. Missing files are not an error.
	Remove(path string) error
}

// Name returns the file name part of a reference, for download headers.
func Name(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// cleanName reduces an uploaded file name to its base and rejects names that
// would escape the job directory.
func cleanName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

func cleanJobID(jobID string) error {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return fmt.Errorf("%w: job id %q", ErrInvalidName, jobID)
	}
	return nil
}
