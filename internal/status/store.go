package status

import (
	"context"
	"sync"
	"time"
)

// Store holds the latest snapshot of every job.
type Store interface {
	// Publish records next as the job's current state. It fails with
	// ErrTerminal, ErrRegression or ErrInvalidSnapshot when the transition is
	// not allowed, leaving the stored snapshot untouched.
	Publish(ctx context.Context, next Snapshot) error

	// Get returns the latest snapshot, or ErrNotFound.
	Get(ctx context.Context, jobID string) (Snapshot, error)
}

// Watcher is implemented by stores that can push updates to followers.
type Watcher interface {
	// Watch delivers every snapshot published for jobID after the call. The
	// channel is closed when ctx is done or the job reaches a terminal state.
	Watch(ctx context.Context, jobID string) (<-chan Snapshot, error)
}

// MemoryStore is an in-process Store. Snapshots are stored and returned by
// value, so readers never share memory with the writer.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Snapshot
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]Snapshot),
		now:  time.Now,
	}
}

// Publish implements Store.
func (m *MemoryStore) Publish(ctx context.Context, next Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev *Snapshot
	if cur, ok := m.jobs[next.JobID]; ok {
		prev = &cur
	}
	if err := Transition(prev, next); err != nil {
		return err
	}
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = m.now().UTC()
	}
	m.jobs[next.JobID] = clone(next)
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, jobID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.jobs[jobID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return clone(s), nil
}

// Len returns the number of tracked jobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

func clone(s Snapshot) Snapshot {
	if s.Error != nil {
		f := *s.Error
		s.Error = &f
	}
	return s
}

var _ Store = (*MemoryStore)(nil)
