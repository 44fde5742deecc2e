// Package config loads the reconciler configuration: a YAML file decoded
// over built-in defaults, then environment overrides. The result is built
// once at startup and passed to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saofleet/reconciler/internal/reconcile"
	"github.com/saofleet/reconciler/internal/table"
	"github.com/saofleet/reconciler/internal/vehicleid"
)

// Config is the full configuration.
type Config struct {
	Redis    RedisConfig       `yaml:"redis"`
	Worker   WorkerConfig      `yaml:"worker"`
	Server   ServerConfig      `yaml:"server"`
	Storage  StorageConfig     `yaml:"storage"`
	Columns  reconcile.Columns `yaml:"columns"`
	Prefixes PrefixConfig      `yaml:"prefixes"`
	History  HistoryConfig     `yaml:"history"`
	Log      LogConfig         `yaml:"log"`
}

// RedisConfig configures the job queue and status store.
type RedisConfig struct {
	URL           string        `yaml:"url"`
	Password      string        `yaml:"password"`
	Queue         string        `yaml:"queue"`
	ConsumerGroup string        `yaml:"consumer_group"`
	BlockMs       int           `yaml:"block_ms"`
	StatusTTL     time.Duration `yaml:"status_ttl"`
}

// WorkerConfig configures the job runner.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`

	// HeartbeatInterval between presence updates in Redis mode; 0 disables them
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string  `yaml:"addr"`
	MaxUploadMB    int64   `yaml:"max_upload_mb"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// StorageConfig selects where staged inputs and results live.
type StorageConfig struct {
	Backend    string   `yaml:"backend"` // "file" or "s3"
	Dir        string   `yaml:"dir"`
	Format     string   `yaml:"format"` // result format: "xlsx" or "csv"
	KeepInputs bool     `yaml:"keep_inputs"`
	S3         S3Config `yaml:"s3"`
}

// S3Config holds the object store settings used when Backend is "s3".
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// PrefixConfig holds the fleet prefixes stripped from vehicle identifiers.
type PrefixConfig struct {
	Services string `yaml:"services"`
	Usages   string `yaml:"usages"`
}

// HistoryConfig locates the job history ledger. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, or auto
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Redis: RedisConfig{
			URL:           "redis://localhost:6379",
			Queue:         "jobs:v1:reconcile",
			ConsumerGroup: "reconcile-workers",
			BlockMs:       5000,
			StatusTTL:     24 * time.Hour,
		},
		Worker: WorkerConfig{Concurrency: 2, HeartbeatInterval: 15 * time.Second},
		Server: ServerConfig{
			Addr:           ":5000",
			MaxUploadMB:    32,
			RateLimitRPS:   2,
			RateLimitBurst: 5,
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     "temp",
			Format:  string(table.FormatXLSX),
		},
		Columns: reconcile.DefaultColumns(),
		Prefixes: PrefixConfig{
			Services: vehicleid.ServicePrefix,
			Usages:   vehicleid.UsagePrefix,
		},
		History: HistoryConfig{Path: "reconciler-history.db"},
		Log:     LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides. The returned configuration is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("could not read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment. PORT keeps the host and
// replaces only the port of the listen address.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("PORT"); v != "" {
		host := ""
		if i := strings.LastIndex(c.Server.Addr, ":"); i >= 0 {
			host = c.Server.Addr[:i]
		}
		c.Server.Addr = host + ":" + v
	}
	if v := getenv("RECONCILER_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "file":
	case "s3":
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3 requires endpoint and bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be file or s3", c.Storage.Backend))
	}
	if _, err := table.ParseFormat(c.Storage.Format); err != nil {
		errs = append(errs, fmt.Errorf("storage.format: %w", err))
	}
	if c.Storage.Dir == "" {
		errs = append(errs, errors.New("storage.dir is required"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency))
	}
	if c.Worker.HeartbeatInterval < 0 {
		errs = append(errs, fmt.Errorf("worker.heartbeat_interval must not be negative, got %s", c.Worker.HeartbeatInterval))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}
	if c.Redis.BlockMs <= 0 {
		errs = append(errs, fmt.Errorf("redis.block_ms must be positive, got %d", c.Redis.BlockMs))
	}
	cols := c.Columns
	for name, v := range map[string]string{
		"columns.service_vehicle": cols.ServiceVehicle,
		"columns.service_start":   cols.ServiceStart,
		"columns.service_end":     cols.ServiceEnd,
		"columns.usage_vehicle":   cols.UsageVehicle,
		"columns.usage_time":      cols.UsageTime,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", name))
		}
	}
	switch c.Log.Format {
	case "", "auto", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json, console or auto", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ResultFormat returns the validated result format.
func (c Config) ResultFormat() table.Format {
	f, err := table.ParseFormat(c.Storage.Format)
	if err != nil {
		return table.FormatXLSX
	}
	return f
}

// EngineConfig builds the reconciliation engine settings.
func (c Config) EngineConfig() reconcile.Config {
	return reconcile.Config{
		Columns:    c.Columns,
		ServiceIDs: vehicleid.Normalizer{Prefix: c.Prefixes.Services},
		UsageIDs:   vehicleid.Normalizer{Prefix: c.Prefixes.Usages},
	}
}
