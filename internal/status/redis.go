package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/saofleet/reconciler/internal/redis"
)

// RedisStore keeps snapshots in Redis so the API process and any number of
// worker processes share one view of every job.
type RedisStore struct {
	client *redisclient.Client
	now    func() time.Time
}

// NewRedisStore creates a store on top of a connected client.
func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Publish implements Store. The transition check and the write happen in one
// optimistic transaction.
func (s *RedisStore) Publish(ctx context.Context, next Snapshot) error {
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = s.now().UTC()
	}
	return s.client.UpdateStatus(ctx, next.JobID, func(raw []byte) ([]byte, error) {
		var prev *Snapshot
		if raw != nil {
			var cur Snapshot
			if err := json.Unmarshal(raw, &cur); err != nil {
				return nil, fmt.Errorf("decode stored status: %w", err)
			}
			prev = &cur
		}
		if err := Transition(prev, next); err != nil {
			return nil, err
		}
		return json.Marshal(next)
	})
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, jobID string) (Snapshot, error) {
	raw, err := s.client.GetStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, redisclient.ErrNoStatus) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode stored status: %w", err)
	}
	return snap, nil
}

// Watch implements Watcher.
func (s *RedisStore) Watch(ctx context.Context, jobID string) (<-chan Snapshot, error) {
	pubsub, err := s.client.SubscribeStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
				if snap.State.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}

var (
	_ Store   = (*RedisStore)(nil)
	_ Watcher = (*RedisStore)(nil)
)
