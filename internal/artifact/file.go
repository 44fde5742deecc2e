package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps artifacts in a local directory tree, <dir>/<jobID>/<name>.
// References are file:// URLs.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Stage implements Store.
func (s *FileStore) Stage(ctx context.Context, jobID, name string, r io.Reader) (string, error) {
	return s.write(jobID, name, r)
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, jobID, name string, r io.Reader) (string, error) {
	path, err := s.write(jobID, name, r)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

// write copies r to a temp file in the job directory and renames it into
// place, so readers never observe a partial file.
func (s *FileStore) write(jobID, name string, r io.Reader) (string, error) {
	if err := cleanJobID(jobID); err != nil {
		return "", err
	}
	base, err := cleanName(name)
	if err != nil {
		return "", err
	}
	jobDir := filepath.Join(s.dir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}

	tmp, err := os.CreateTemp(jobDir, "."+base+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", base, err)
	}

	path := filepath.Join(jobDir, base)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", base, err)
	}
	return path, nil
}

// Open implements Store.
func (s *FileStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return f, err
}

// resolve maps a file:// reference to a path inside the store.
func (s *FileStore) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	path := filepath.Clean(filepath.FromSlash(u.Path))
	if !strings.HasPrefix(path, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside %s", ErrInvalidRef, ref, s.dir)
	}
	return path, nil
}

// Remove implements Store. Only paths inside the root directory are removed.
func (s *FileStore) Remove(path string) error {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) || !strings.HasPrefix(clean, s.dir+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q is outside %s", ErrInvalidRef, path, s.dir)
	}
	err := os.Remove(clean)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

var _ Store = (*FileStore)(nil)
