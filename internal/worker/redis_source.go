package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	redisclient "github.com/saofleet/reconciler/internal/redis"
)

// maskRedisURL masks the password in a Redis URL for safe logging.
// redis://:password@host:port -> redis://:***@host:port
func maskRedisURL(redisURL string) string {
	u, err := url.Parse(redisURL)
	if err != nil {
		// If parsing fails, just show the scheme and a placeholder
		if strings.HasPrefix(redisURL, "redis://") {
			return "redis://***"
		}
		return "***"
	}
	// If there's a password, mask it
	if _, hasPass := u.User.Password(); hasPass {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// RedisSource implements JobSource and Queue for Redis Streams. Any number of
// worker processes can consume the same stream through the consumer group.
type RedisSource struct {
	client    *redisclient.Client
	ownClient bool
	config    RedisSourceConfig
}

// RedisSourceConfig holds configuration for RedisSource.
type RedisSourceConfig struct {
	// URL is the Redis connection URL
	URL string

	// Password is the Redis password (optional)
	Password string

	// QueueName is the Redis Stream to consume from (default: "jobs:v1:reconcile")
	QueueName string

	// ConsumerGroup is the consumer group name (default: "reconcile-workers")
	ConsumerGroup string

	// BlockMs is how long to wait for a job before returning nil (default: 5000)
	BlockMs int

	// StatusTTL is how long job status snapshots are kept (default: 24h)
	StatusTTL time.Duration

	// LogFn is an optional callback for logging (if nil, prints to stdout)
	LogFn func(level, msg string)
}

// NewRedisSource creates a new Redis Streams job source. The connection is
// opened by Connect.
func NewRedisSource(cfg RedisSourceConfig) *RedisSource {
	if cfg.QueueName == "" {
		cfg.QueueName = redisclient.DefaultQueue
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = redisclient.DefaultConsumerGroup
	}
	if cfg.BlockMs == 0 {
		cfg.BlockMs = 5000
	}

	return &RedisSource{
		config:    cfg,
		ownClient: true,
		client: redisclient.NewClient(redisclient.ClientConfig{
			URL:           cfg.URL,
			Password:      cfg.Password,
			QueueName:     cfg.QueueName,
			ConsumerGroup: cfg.ConsumerGroup,
			BlockMs:       cfg.BlockMs,
			StatusTTL:     cfg.StatusTTL,
		}),
	}
}

// NewRedisSourceWithClient wraps an already connected client, e.g. one
// shared with the status store. Close leaves the client open.
func NewRedisSourceWithClient(client *redisclient.Client, cfg RedisSourceConfig) *RedisSource {
	return &RedisSource{client: client, config: cfg}
}

// Name returns the source identifier.
func (s *RedisSource) Name() string {
	return "redis"
}

// log outputs a message - uses LogFn callback if set, otherwise prints to stdout.
func (s *RedisSource) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if s.config.LogFn != nil {
		s.config.LogFn(level, msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

// Connect establishes connection to Redis and creates the consumer group.
func (s *RedisSource) Connect(ctx context.Context) error {
	if s.ownClient {
		if err := s.client.Connect(ctx, s.config.URL, s.config.Password); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	if err := s.client.EnsureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	if s.config.URL != "" {
		s.log("info", "   - Redis: %s", maskRedisURL(s.config.URL))
	}
	s.log("info", "   - Queue: %s", s.client.QueueName())
	s.log("info", "   - Consumer: %s", s.client.WorkerID())
	return nil
}

// Next blocks until a job is available or the block timeout expires.
func (s *RedisSource) Next(ctx context.Context) (*Job, error) {
	redisJob, err := s.client.ReadJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read job from Redis: %w", err)
	}
	if redisJob == nil {
		return nil, nil
	}
	return s.convertJob(redisJob), nil
}

// convertJob converts a redis.Job to a worker.Job.
func (s *RedisSource) convertJob(rj *redisclient.Job) *Job {
	return &Job{
		ID:        rj.JobID,
		Type:      rj.Type,
		Payload:   rj.Payload,
		Source:    "redis",
		MessageID: rj.MessageID,
		Metadata:  JobMetadata{CreatedAt: rj.CreatedAt},
	}
}

// Enqueue appends a job to the stream.
func (s *RedisSource) Enqueue(ctx context.Context, job *Job) error {
	msgID, err := s.client.Enqueue(ctx, job.ID, job.Type, job.Payload)
	if err != nil {
		return err
	}
	job.MessageID = msgID
	job.Source = "redis"
	return nil
}

// Ack acknowledges successful job completion.
func (s *RedisSource) Ack(ctx context.Context, job *Job) error {
	return s.client.AckJob(ctx, job.MessageID)
}

// Nack copies the job to the dead letter stream and acknowledges it, so a
// failed job is never redelivered.
func (s *RedisSource) Nack(ctx context.Context, job *Job, err error) error {
	reason := "job failed"
	if err != nil {
		reason = err.Error()
	}
	rj := &redisclient.Job{
		MessageID: job.MessageID,
		JobID:     job.ID,
		Type:      job.Type,
		Payload:   job.Payload,
	}
	if dlqErr := s.client.MoveToDLQ(ctx, rj, reason); dlqErr != nil {
		s.log("error", "   - Failed to move job %s to DLQ: %v", job.ID, dlqErr)
	}
	return s.client.AckJob(ctx, job.MessageID)
}

// Close cleanly disconnects from Redis.
func (s *RedisSource) Close() error {
	if s.ownClient && s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client, for the status store.
func (s *RedisSource) Client() *redisclient.Client {
	return s.client
}

// Ensure RedisSource implements JobSource and Queue
var (
	_ JobSource = (*RedisSource)(nil)
	_ Queue     = (*RedisSource)(nil)
)
