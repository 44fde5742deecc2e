// Package heartbeat publishes worker presence to Redis.
//
// Architecture:
//
//	Worker                                     Redis
//	┌─────────────┐  SET worker:v1:<id> EX ttl  ┌─────────────┐
//	│  Publisher  │ ──────────────────────────▶ │  Keys       │ → reconciler workers
//	│   (15s)     │  PUBLISH workers:v1:status  ┌─────────────┐
//	│             │ ──────────────────────────▶ │  Pub/Sub    │ → live dashboards
//	└─────────────┘                             └─────────────┘
//
// A worker that stops publishing disappears once its key expires.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// workerIDPattern validates worker IDs before they become part of a key.
var workerIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

const (
	keyPrefix = "worker:v1:"

	// DefaultChannel carries every heartbeat for live consumers.
	DefaultChannel = "workers:v1:status"
)

// Stats is a snapshot of a worker's job counters.
type Stats struct {
	Active    int64
	Processed int64
	Failed    int64
}

// WorkerStatus is the payload stored and published for each heartbeat.
type WorkerStatus struct {
	Version     string `json:"version"`
	Timestamp   string `json:"timestamp"`
	WorkerID    string `json:"workerId"`
	Hostname    string `json:"hostname,omitempty"`
	Queue       string `json:"queue"`
	Concurrency int    `json:"concurrency"`
	Active      int64  `json:"active"`
	Processed   int64  `json:"processed"`
	Failed      int64  `json:"failed"`
	StartedAt   string `json:"startedAt"`
}

// Publisher periodically reports one worker's presence.
type Publisher struct {
	client    *redis.Client
	config    PublisherConfig
	hostname  string
	startedAt time.Time
}

// PublisherConfig holds configuration for the heartbeat publisher.
type PublisherConfig struct {
	// WorkerID identifies the worker; it becomes part of the Redis key
	WorkerID string

	// Queue and Concurrency are reported as-is
	Queue       string
	Concurrency int

	// Interval is the time between heartbeats (default: 15s)
	Interval time.Duration

	// TTL is how long a heartbeat stays visible (default: 3 * Interval)
	TTL time.Duration

	// Channel overrides the pub/sub channel (default: DefaultChannel)
	Channel string

	// Stats supplies the job counters (optional)
	Stats func() Stats

	// LogFn is an optional callback for logging
	LogFn func(level, msg string)
}

// NewPublisher creates a heartbeat publisher on an open client.
func NewPublisher(client *redis.Client, cfg PublisherConfig) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("heartbeat needs a connected Redis client")
	}
	if !workerIDPattern.MatchString(cfg.WorkerID) {
		return nil, fmt.Errorf("invalid worker ID: must be 1-64 alphanumeric characters, hyphens, underscores, or dots")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 3 * cfg.Interval
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	hostname, _ := os.Hostname()

	return &Publisher{
		client:    client,
		config:    cfg,
		hostname:  hostname,
		startedAt: time.Now().UTC(),
	}, nil
}

func (p *Publisher) log(level, format string, args ...any) {
	if p.config.LogFn != nil {
		p.config.LogFn(level, fmt.Sprintf(format, args...))
	}
}

// Start publishes a heartbeat immediately and then every Interval.
// This method blocks until the context is cancelled, then removes the
// worker's key so it drops out of listings without waiting for the TTL.
func (p *Publisher) Start(ctx context.Context) error {
	if err := p.PublishOnce(ctx); err != nil {
		p.log("warning", "Initial heartbeat failed: %v", err)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := p.Remove(cleanupCtx); err != nil {
				p.log("warning", "Failed to remove heartbeat: %v", err)
			}
			return nil
		case <-ticker.C:
			if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.log("warning", "Heartbeat failed: %v", err)
			}
		}
	}
}

// PublishOnce stores and publishes a single heartbeat.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	msg := WorkerStatus{
		Version:     "1.0",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		WorkerID:    p.config.WorkerID,
		Hostname:    p.hostname,
		Queue:       p.config.Queue,
		Concurrency: p.config.Concurrency,
		StartedAt:   p.startedAt.Format(time.RFC3339),
	}
	if p.config.Stats != nil {
		s := p.config.Stats()
		msg.Active, msg.Processed, msg.Failed = s.Active, s.Processed, s.Failed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, Key(p.config.WorkerID), data, p.config.TTL)
		pipe.Publish(ctx, p.config.Channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish heartbeat: %w", err)
	}
	return nil
}

// Remove deletes the worker's heartbeat key.
func (p *Publisher) Remove(ctx context.Context) error {
	return p.client.Del(ctx, Key(p.config.WorkerID)).Err()
}

// Interval returns the configured publish interval.
func (p *Publisher) Interval() time.Duration {
	return p.config.Interval
}

// Key returns the Redis key holding a worker's latest heartbeat.
func Key(workerID string) string {
	return keyPrefix + workerID
}

// List returns the workers with a live heartbeat, sorted by ID.
func List(ctx context.Context, client *redis.Client) ([]WorkerStatus, error) {
	var keys []string
	iter := client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan heartbeats: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read heartbeats: %w", err)
	}

	workers := make([]WorkerStatus, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		var ws WorkerStatus
		if err := json.Unmarshal([]byte(raw), &ws); err != nil {
			continue
		}
		if ws.WorkerID == "" {
			ws.WorkerID = strings.TrimPrefix(keys[i], keyPrefix)
		}
		workers = append(workers, ws)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].WorkerID < workers[j].WorkerID })
	return workers, nil
}
