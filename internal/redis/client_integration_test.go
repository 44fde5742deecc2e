package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// setupMiniredis starts a miniredis instance and returns a connected Client.
func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *Client, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	client := NewClient(ClientConfig{
		QueueName:     "jobs:v1:integration-test",
		ConsumerGroup: "test-workers",
		BlockMs:       100,
		StatusTTL:     time.Hour,
	})

	ctx := context.Background()
	if err := client.Connect(ctx, "redis://"+mr.Addr(), ""); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.EnsureConsumerGroup(ctx); err != nil {
		t.Fatalf("EnsureConsumerGroup: %v", err)
	}

	// Also create a raw go-redis client for assertions
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })

	return mr, client, raw
}

func TestEnsureConsumerGroupTwice(t *testing.T) {
	_, client, _ := setupMiniredis(t)

	if err := client.EnsureConsumerGroup(context.Background()); err != nil {
		t.Errorf("second EnsureConsumerGroup should ignore BUSYGROUP, got %v", err)
	}
}

func TestEnqueueAndReadJob(t *testing.T) {
	_, client, _ := setupMiniredis(t)
	ctx := context.Background()

	payload := map[string]interface{}{"services_path": "/tmp/s.xlsx", "usages_path": "/tmp/u.xlsx"}
	msgID, err := client.Enqueue(ctx, "job-001", "reconcile", payload)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	job, err := client.ReadJob(ctx)
	if err != nil {
		t.Fatalf("ReadJob failed: %v", err)
	}
	if job == nil {
		t.Fatal("ReadJob returned nil job")
	}
	if job.MessageID != msgID {
		t.Errorf("MessageID = %q, want %q", job.MessageID, msgID)
	}
	if job.JobID != "job-001" {
		t.Errorf("JobID = %q, want job-001", job.JobID)
	}
	if job.Type != "reconcile" {
		t.Errorf("Type = %q, want reconcile", job.Type)
	}
	if job.Payload["usages_path"] != "/tmp/u.xlsx" {
		t.Errorf("Payload[usages_path] = %v", job.Payload["usages_path"])
	}
	if job.CreatedAt.IsZero() {
		t.Error("CreatedAt should be parsed")
	}

	if err := client.AckJob(ctx, job.MessageID); err != nil {
		t.Errorf("AckJob failed: %v", err)
	}
}

func TestReadJobEmptyQueue(t *testing.T) {
	_, client, _ := setupMiniredis(t)

	job, err := client.ReadJob(context.Background())
	if err != nil {
		t.Fatalf("ReadJob error: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job on empty queue, got %+v", job)
	}
}

func TestMoveToDLQ(t *testing.T) {
	_, client, raw := setupMiniredis(t)
	ctx := context.Background()

	job := &Job{
		MessageID: "msg-006",
		JobID:     "job-dlq-006",
		Type:      "reconcile",
		Payload:   map[string]interface{}{"key": "value"},
		RawData:   map[string]interface{}{},
	}

	if err := client.MoveToDLQ(ctx, job, "IOError: missing column"); err != nil {
		t.Fatalf("MoveToDLQ failed: %v", err)
	}

	msgs, err := raw.XRange(ctx, "dlq:v1:integration-test", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(msgs))
	}

	entry := msgs[0].Values
	if entry["jobId"] != job.JobID {
		t.Errorf("DLQ jobId = %q, want %q", entry["jobId"], job.JobID)
	}
	if entry["reason"] != "IOError: missing column" {
		t.Errorf("DLQ reason = %q", entry["reason"])
	}
	if entry["original_queue"] != "jobs:v1:integration-test" {
		t.Errorf("DLQ original_queue = %q", entry["original_queue"])
	}
}

func TestUpdateStatusStoresAndPublishes(t *testing.T) {
	mr, client, raw := setupMiniredis(t)
	ctx := context.Background()

	pubsub := raw.Subscribe(ctx, "status:v1:job-7")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	err := client.UpdateStatus(ctx, "job-7", func(prev []byte) ([]byte, error) {
		if prev != nil {
			t.Errorf("prev = %q, want nil for a new job", prev)
		}
		return []byte(`{"state":"PENDING"}`), nil
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := client.GetStatus(ctx, "job-7")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if string(got) != `{"state":"PENDING"}` {
		t.Errorf("GetStatus = %q", got)
	}
	if ttl := mr.TTL("job:v1:job-7:status"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	msg, err := pubsub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("failed to receive message: %v", err)
	}
	if msg.Payload != `{"state":"PENDING"}` {
		t.Errorf("published payload = %q", msg.Payload)
	}
}

func TestUpdateStatusAbortsOnCallbackError(t *testing.T) {
	_, client, _ := setupMiniredis(t)
	ctx := context.Background()

	if err := client.UpdateStatus(ctx, "job-8", func([]byte) ([]byte, error) {
		return []byte("first"), nil
	}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	rejected := errors.New("rejected")
	err := client.UpdateStatus(ctx, "job-8", func(prev []byte) ([]byte, error) {
		if string(prev) != "first" {
			t.Errorf("prev = %q, want first", prev)
		}
		return nil, rejected
	})
	if !errors.Is(err, rejected) {
		t.Fatalf("UpdateStatus error = %v, want %v", err, rejected)
	}

	got, _ := client.GetStatus(ctx, "job-8")
	if string(got) != "first" {
		t.Errorf("value changed after rejected update: %q", got)
	}
}

func TestGetStatusMissing(t *testing.T) {
	_, client, _ := setupMiniredis(t)

	_, err := client.GetStatus(context.Background(), "nope")
	if !errors.Is(err, ErrNoStatus) {
		t.Errorf("GetStatus error = %v, want ErrNoStatus", err)
	}
}

func TestRedisAccessor(t *testing.T) {
	if NewClient(ClientConfig{}).Redis() != nil {
		t.Error("Redis() should be nil before Connect")
	}

	_, client, _ := setupMiniredis(t)
	rdb := client.Redis()
	if rdb == nil {
		t.Fatal("Redis() returned nil after Connect")
	}
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Errorf("Ping through Redis(): %v", err)
	}
}
