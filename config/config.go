package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables for a dispatch mesh. All fields have working
// defaults; a config file only needs to name what it overrides.
type Config struct {
	Retry    RetryConfig    `yaml:"retry"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Queue    QueueConfig    `yaml:"queue"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RetryConfig tunes the retry handler.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// QueueConfig tunes the message queue.
type QueueConfig struct {
	Capacity        int           `yaml:"capacity"`
	MaxRedeliveries int           `yaml:"max_redeliveries"`
	HeartbeatWindow time.Duration `yaml:"heartbeat_window"`
}

// DispatchConfig tunes the leader's dispatch and collection behavior.
type DispatchConfig struct {
	TokenBudget    int           `yaml:"token_budget"`
	CollectTimeout time.Duration `yaml:"collect_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Path of the SQLite database. Empty disables persistence.
	Path string `yaml:"path"`
}

// LoggingConfig tunes structured logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Retry: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  1 * time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
		},
		Queue: QueueConfig{
			Capacity:        256,
			MaxRedeliveries: 3,
			HeartbeatWindow: 60 * time.Second,
		},
		Dispatch: DispatchConfig{
			TokenBudget:    500,
			CollectTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate rejects values the dispatch core cannot work with.
func (c Config) Validate() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("retry.initial_delay must be > 0, got %s", c.Retry.InitialDelay)
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("retry.max_delay must be >= retry.initial_delay")
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be >= 1, got %v", c.Retry.BackoffFactor)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be > 0, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("breaker.timeout must be > 0, got %s", c.Breaker.Timeout)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0, got %d", c.Queue.Capacity)
	}
	if c.Queue.MaxRedeliveries < 0 {
		return fmt.Errorf("queue.max_redeliveries must be >= 0, got %d", c.Queue.MaxRedeliveries)
	}
	if c.Dispatch.TokenBudget <= 0 {
		return fmt.Errorf("dispatch.token_budget must be > 0, got %d", c.Dispatch.TokenBudget)
	}
	if c.Dispatch.CollectTimeout <= 0 {
		return fmt.Errorf("dispatch.collect_timeout must be > 0, got %s", c.Dispatch.CollectTimeout)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
