package sync

import (
	"fmt"
	"time"
)

// Config is the runtime-tunable orchestrator configuration.
type Config struct {
	AutoSyncInterval time.Duration `json:"autoSyncInterval"`
	RetryDelay       time.Duration `json:"retryDelay"`
	MaxRetries       int           `json:"maxRetries"`
	BatchSize        int           `json:"batchSize"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		AutoSyncInterval: 5 * time.Minute,
		RetryDelay:       30 * time.Second,
		MaxRetries:       3,
		BatchSize:        50,
	}
}

// Validate rejects non-positive intervals and sizes. MaxRetries may be zero.
func (c Config) Validate() error {
	switch {
	case c.AutoSyncInterval <= 0:
		return fmt.Errorf("autoSyncInterval must be positive, got %s", c.AutoSyncInterval)
	case c.RetryDelay <= 0:
		return fmt.Errorf("retryDelay must be positive, got %s", c.RetryDelay)
	case c.MaxRetries < 0:
		return fmt.Errorf("maxRetries must not be negative, got %d", c.MaxRetries)
	case c.BatchSize <= 0:
		return fmt.Errorf("batchSize must be positive, got %d", c.BatchSize)
	}
	return nil
}
