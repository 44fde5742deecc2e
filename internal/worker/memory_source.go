package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("queue closed")

// MemorySource is an in-process JobSource and Queue backed by a buffered
// channel. It serves the single-process mode where the API server and the
// workers share one binary.
type MemorySource struct {
	jobs         chan *Job
	blockTimeout time.Duration

	mu     sync.Mutex
	closed bool
	acked  int
	failed []string
}

// NewMemorySource creates a queue holding up to capacity pending jobs.
func NewMemorySource(capacity int) *MemorySource {
	if capacity <= 0 {
		capacity = 64
	}
	return &MemorySource{
		jobs:         make(chan *Job, capacity),
		blockTimeout: 5 * time.Second,
	}
}

// Name returns the source identifier.
func (m *MemorySource) Name() string {
	return "memory"
}

// Connect is a no-op.
func (m *MemorySource) Connect(ctx context.Context) error {
	return nil
}

// Enqueue adds a job, blocking while the buffer is full.
func (m *MemorySource) Enqueue(ctx context.Context, job *Job) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}
	job.Source = "memory"
	if job.Metadata.CreatedAt.IsZero() {
		job.Metadata.CreatedAt = time.Now().UTC()
	}
	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next waits for a job, returning nil after the block timeout.
func (m *MemorySource) Next(ctx context.Context) (*Job, error) {
	timer := time.NewTimer(m.blockTimeout)
	defer timer.Stop()
	select {
	case job := <-m.jobs:
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack records a completed job.
func (m *MemorySource) Ack(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
	return nil
}

// Nack records a failed job; it is not requeued.
func (m *MemorySource) Nack(ctx context.Context, job *Job, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, job.ID)
	return nil
}

// Close rejects further Enqueue calls. Jobs already buffered can still be
// drained by Next.
func (m *MemorySource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Pending returns the number of buffered jobs.
func (m *MemorySource) Pending() int {
	return len(m.jobs)
}

// Stats returns the number of acked jobs and the ids of failed ones.
func (m *MemorySource) Stats() (acked int, failed []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked, append([]string(nil), m.failed...)
}

// Ensure MemorySource implements JobSource and Queue
var (
	_ JobSource = (*MemorySource)(nil)
	_ Queue     = (*MemorySource)(nil)
)
