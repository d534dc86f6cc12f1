package config

import (
	"fmt"
	"time"
)

// Storage backends accepted by ROLLOUT_STORAGE.
const (
	StorageMemory = "memory"
	StorageBolt   = "bolt"
	StorageRedis  = "redis"
)

// Rollout holds the settings of the rollout service and CLI.
type Rollout struct {
	Env     string `env:"ROLLOUT_ENV" envDefault:"development"` // Env selects logging defaults: development, staging or production.
	Service string `env:"ROLLOUT_SERVICE" envDefault:"rollout"` // Service is attached to every log record.

	Storage  string `env:"ROLLOUT_STORAGE" envDefault:"memory"`      // Storage is one of memory, bolt or redis.
	BoltPath string `env:"ROLLOUT_BOLT_PATH" envDefault:"rollout.db"` // BoltPath is the database file used by the bolt backend.

	HistoryLength int  `env:"ROLLOUT_HISTORY_LENGTH" envDefault:"50"` // HistoryLength bounds the audit log of each feature.
	Migrate       bool `env:"ROLLOUT_MIGRATE" envDefault:"false"`     // Migrate enables reading features from the legacy key layout.

	LogLevel  string `env:"ROLLOUT_LOG_LEVEL"`  // LogLevel overrides the environment default level.
	LogFormat string `env:"ROLLOUT_LOG_FORMAT"` // LogFormat overrides the environment default format (json or text).

	MetricsInterval time.Duration `env:"ROLLOUT_METRICS_INTERVAL" envDefault:"15s"` // MetricsInterval is how often gauges are refreshed from storage.
}

// Validate reports settings that would fail later at startup.
func (c Rollout) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageRedis:
	case StorageBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("%w: ROLLOUT_BOLT_PATH is required for the bolt storage", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage %q", ErrInvalidConfig, c.Storage)
	}

	if c.HistoryLength <= 0 {
		return fmt.Errorf("%w: history length must be positive, got %d", ErrInvalidConfig, c.HistoryLength)
	}

	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
