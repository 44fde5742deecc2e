// Package redis provides the Redis Streams job queue and the job status
// storage used by the reconciler.
//
// Key design choices:
//
//   - Jobs are appended to a stream and consumed through a consumer group, so
//     any number of worker processes can share one queue
//   - Each job's latest status snapshot is a JSON string under
//     job:v1:<id>:status with a TTL; that TTL is the only garbage collection
//   - Every accepted status write is also published on status:v1:<id> so
//     followers see updates without polling
//   - Failed jobs are acknowledged (never redelivered) and copied to a dead
//     letter stream for inspection
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoStatus is returned by GetStatus when the job has no stored status.
var ErrNoStatus = errors.New("no status stored for job")

// maxWatchRetries bounds optimistic-lock retries in UpdateStatus.
const maxWatchRetries = 5

// Job represents a job read from Redis Streams.
type Job struct {
	MessageID string
	JobID     string
	Type      string
	Payload   map[string]interface{}
	CreatedAt time.Time
	RawData   map[string]interface{}
}

// Client wraps Redis operations for the job queue system.
type Client struct {
	client        *redis.Client
	workerID      string
	queueName     string
	consumerGroup string
	blockMs       int
	statusTTL     time.Duration
}

// ClientConfig holds configuration for the Redis client.
type ClientConfig struct {
	URL           string
	Password      string
	QueueName     string
	ConsumerGroup string
	BlockMs       int

	// StatusTTL is how long status snapshots are kept (default: 24h)
	StatusTTL time.Duration
}

// Default names used when the configuration leaves them empty.
const (
	DefaultQueue         = "jobs:v1:reconcile"
	DefaultConsumerGroup = "reconcile-workers"
)

// NewClient creates a new Redis client for the job queue.
func NewClient(cfg ClientConfig) *Client {
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueue
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = DefaultConsumerGroup
	}
	if cfg.BlockMs == 0 {
		cfg.BlockMs = 5000 // 5 seconds default
	}
	if cfg.StatusTTL == 0 {
		cfg.StatusTTL = 24 * time.Hour
	}

	return &Client{
		workerID:      fmt.Sprintf("reconciler-%s", uuid.New().String()[:8]),
		queueName:     cfg.QueueName,
		consumerGroup: cfg.ConsumerGroup,
		blockMs:       cfg.BlockMs,
		statusTTL:     cfg.StatusTTL,
	}
}

// Connect establishes connection to Redis.
func (c *Client) Connect(ctx context.Context, url, password string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if password != "" {
		opts.Password = password
	}

	c.client = redis.NewClient(opts)

	// Verify connection
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// EnsureConsumerGroup creates the consumer group if it doesn't exist.
func (c *Client) EnsureConsumerGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.queueName, c.consumerGroup, "0").Err()
	if err != nil {
		// Ignore "BUSYGROUP" error (group already exists)
		if !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group: %w", err)
		}
	}
	return nil
}

// Enqueue appends a job to the stream and returns its message id.
func (c *Client) Enqueue(ctx context.Context, jobID, jobType string, payload map[string]interface{}) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.queueName,
		Values: map[string]interface{}{
			"jobId":     jobID,
			"type":      jobType,
			"payload":   string(payloadBytes),
			"createdAt": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// ReadJob reads the next available job from the stream using XREADGROUP.
// Returns nil if no job is available within the block timeout.
func (c *Client) ReadJob(ctx context.Context) (*Job, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.workerID,
		Streams:  []string{c.queueName, ">"},
		Count:    1,
		Block:    time.Duration(c.blockMs) * time.Millisecond,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, nil // No message available
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return c.parseMessage(streams[0].Messages[0])
}

// parseMessage converts a Redis stream message to a Job.
func (c *Client) parseMessage(msg redis.XMessage) (*Job, error) {
	job := &Job{
		MessageID: msg.ID,
		RawData:   make(map[string]interface{}),
	}

	for k, v := range msg.Values {
		job.RawData[k] = v
	}

	if jobID, ok := msg.Values["jobId"].(string); ok {
		job.JobID = jobID
	}
	if jobType, ok := msg.Values["type"].(string); ok {
		job.Type = jobType
	}
	if created, ok := msg.Values["createdAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			job.CreatedAt = t
		}
	}

	if payloadStr, ok := msg.Values["payload"].(string); ok {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse job payload: %w", err)
		}
		job.Payload = payload
	}

	return job, nil
}

// AckJob acknowledges a processed message.
func (c *Client) AckJob(ctx context.Context, messageID string) error {
	return c.client.XAck(ctx, c.queueName, c.consumerGroup, messageID).Err()
}

// MoveToDLQ copies a failed message to the Dead Letter Queue.
func (c *Client) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	fields := map[string]interface{}{
		"original_message_id": job.MessageID,
		"original_queue":      c.queueName,
		"reason":              reason,
		"moved_at":            time.Now().UTC().Format(time.RFC3339),
		"worker_id":           c.workerID,
		"jobId":               job.JobID,
		"type":                job.Type,
	}

	if payloadBytes, err := json.Marshal(job.Payload); err == nil {
		fields["payload"] = string(payloadBytes)
	}

	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.getDLQName(),
		Values: fields,
	}).Err()
}

// getDLQName returns the Dead Letter Queue name for this queue.
func (c *Client) getDLQName() string {
	// jobs:v1:reconcile -> dlq:v1:reconcile
	parts := strings.Split(c.queueName, ":")
	return fmt.Sprintf("dlq:v1:%s", parts[len(parts)-1])
}

func statusKey(jobID string) string     { return fmt.Sprintf("job:v1:%s:status", jobID) }
func statusChannel(jobID string) string { return fmt.Sprintf("status:v1:%s", jobID) }

// UpdateStatus replaces a job's status under optimistic locking. fn receives
// the current value (nil when absent) and returns the new one; an error from
// fn aborts the update and is returned unchanged. The new value is published
// on the job's status channel in the same transaction.
func (c *Client) UpdateStatus(ctx context.Context, jobID string, fn func(prev []byte) ([]byte, error)) error {
	key := statusKey(jobID)

	txf := func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		next, err := fn(prev)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, c.statusTTL)
			pipe.Publish(ctx, statusChannel(jobID), next)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := c.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("status update for %s: too much contention", jobID)
}

// GetStatus returns the stored status value, or ErrNoStatus.
func (c *Client) GetStatus(ctx context.Context, jobID string) ([]byte, error) {
	b, err := c.client.Get(ctx, statusKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoStatus
	}
	return b, err
}

// SubscribeStatus subscribes to a job's status channel. The caller must close
// the returned PubSub.
func (c *Client) SubscribeStatus(ctx context.Context, jobID string) (*redis.PubSub, error) {
	pubsub := c.client.Subscribe(ctx, statusChannel(jobID))
	// Wait for the subscription confirmation; Pub/Sub has no replay
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return pubsub, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Redis returns the underlying go-redis client, or nil before Connect.
func (c *Client) Redis() *redis.Client {
	return c.client
}

// WorkerID returns the unique worker identifier.
func (c *Client) WorkerID() string {
	return c.workerID
}

// QueueName returns the queue name this client is configured for.
func (c *Client) QueueName() string {
	return c.queueName
}
