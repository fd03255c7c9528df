// Package config loads quizforge settings: defaults, then an optional YAML
// file, then QUIZFORGE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/quizforge/internal/llm"
)

// Config is the full application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	DBPath       string             `yaml:"db_path"`
	Log          LogConfig          `yaml:"log"`
	Events       EventsConfig       `yaml:"events"`
	Queue        QueueConfig        `yaml:"queue"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Material     MaterialConfig     `yaml:"material"`
	LLM          llm.Config         `yaml:"llm"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"` // development | production
	Level string `yaml:"level"`
}

type EventsConfig struct {
	OutboxSize        int           `yaml:"outbox_size"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
	DuplicatePolicy   string        `yaml:"duplicate_policy"` // replace | reject
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Redis             RedisConfig   `yaml:"redis"`
}

// RedisConfig enables the cross-instance event bus when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type QueueConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	Retention         int           `yaml:"retention"`
}

type OrchestratorConfig struct {
	MaxBatchSize int `yaml:"max_batch_size"`
	MaxPassages  int `yaml:"max_passages"`
	PriorItems   int `yaml:"prior_items"`
}

type MaterialConfig struct {
	MaxPassageChars int `yaml:"max_passage_chars"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Mode: "development"},
		Events: EventsConfig{
			OutboxSize:        64,
			PublishTimeout:    250 * time.Millisecond,
			DuplicatePolicy:   "replace",
			HeartbeatInterval: 15 * time.Second,
		},
		Queue: QueueConfig{
			Concurrency:       3,
			MaxRetries:        2,
			BackoffBase:       time.Second,
			BackoffMultiplier: 2,
			BackoffMax:        30 * time.Second,
			Retention:         1000,
		},
		Orchestrator: OrchestratorConfig{
			MaxBatchSize: 50,
			MaxPassages:  4,
			PriorItems:   8,
		},
		Material: MaterialConfig{MaxPassageChars: 800},
		LLM:      llm.DefaultConfig(),
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	llm.ApplyEnv(&cfg.LLM)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile overlays the YAML at path onto cfg. Unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	// #nosec G304 -- config path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: multiple documents or trailing content", path)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(dst *int, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(dst *float64, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(dst *time.Duration, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str(&cfg.Server.Addr, "QUIZFORGE_ADDR")
	duration(&cfg.Server.ShutdownTimeout, "QUIZFORGE_SHUTDOWN_TIMEOUT")
	str(&cfg.DBPath, "QUIZFORGE_DB")
	str(&cfg.Log.Mode, "QUIZFORGE_LOG_MODE")
	str(&cfg.Log.Level, "QUIZFORGE_LOG_LEVEL")

	integer(&cfg.Events.OutboxSize, "QUIZFORGE_EVENTS_OUTBOX_SIZE")
	duration(&cfg.Events.PublishTimeout, "QUIZFORGE_EVENTS_PUBLISH_TIMEOUT")
	str(&cfg.Events.DuplicatePolicy, "QUIZFORGE_EVENTS_DUPLICATE_POLICY")
	duration(&cfg.Events.HeartbeatInterval, "QUIZFORGE_EVENTS_HEARTBEAT")
	str(&cfg.Events.Redis.Addr, "QUIZFORGE_REDIS_ADDR")
	str(&cfg.Events.Redis.Password, "QUIZFORGE_REDIS_PASSWORD")
	integer(&cfg.Events.Redis.DB, "QUIZFORGE_REDIS_DB")
	str(&cfg.Events.Redis.Channel, "QUIZFORGE_REDIS_CHANNEL")

	integer(&cfg.Queue.Concurrency, "QUIZFORGE_QUEUE_CONCURRENCY")
	integer(&cfg.Queue.MaxRetries, "QUIZFORGE_QUEUE_MAX_RETRIES")
	duration(&cfg.Queue.BackoffBase, "QUIZFORGE_QUEUE_BACKOFF_BASE")
	float(&cfg.Queue.BackoffMultiplier, "QUIZFORGE_QUEUE_BACKOFF_MULTIPLIER")
	duration(&cfg.Queue.BackoffMax, "QUIZFORGE_QUEUE_BACKOFF_MAX")
	duration(&cfg.Queue.JobTimeout, "QUIZFORGE_QUEUE_JOB_TIMEOUT")

	integer(&cfg.Orchestrator.MaxBatchSize, "QUIZFORGE_MAX_BATCH_SIZE")

	return errors.Join(errs...)
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Queue.Concurrency < 1 {
		errs = append(errs, errors.New("queue.concurrency must be at least 1"))
	}
	if c.Queue.MaxRetries < 0 {
		errs = append(errs, errors.New("queue.max_retries must not be negative"))
	}
	if c.Queue.BackoffBase <= 0 {
		errs = append(errs, errors.New("queue.backoff_base must be positive"))
	}
	if c.Queue.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("queue.backoff_multiplier must be at least 1"))
	}
	if c.Queue.BackoffMax > 0 && c.Queue.BackoffMax < c.Queue.BackoffBase {
		errs = append(errs, errors.New("queue.backoff_max must not be below backoff_base"))
	}
	if c.Queue.JobTimeout < 0 {
		errs = append(errs, errors.New("queue.job_timeout must not be negative"))
	}
	if c.Events.PublishTimeout <= 0 {
		errs = append(errs, errors.New("events.publish_timeout must be positive"))
	}
	if c.Events.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("events.heartbeat_interval must be positive"))
	}
	switch c.Events.DuplicatePolicy {
	case "replace", "reject":
	default:
		errs = append(errs, fmt.Errorf("events.duplicate_policy must be replace or reject, got %q", c.Events.DuplicatePolicy))
	}
	if c.Orchestrator.MaxBatchSize < 1 {
		errs = append(errs, errors.New("orchestrator.max_batch_size must be at least 1"))
	}
	return errors.Join(errs...)
}
