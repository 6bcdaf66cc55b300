// Package config loads MedAdhere configuration from YAML with environment overrides.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/remote/s3"
	syncpkg "github.com/medadhere/backend/internal/sync"
)

// Remote backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config is the full application configuration.
type Config struct {
	Log    logging.Config `yaml:"log"`
	Data   DataConfig   `yaml:"data"`
	Sync   SyncConfig   `yaml:"sync"`
	Remote RemoteConfig `yaml:"remote"`
	Auth   AuthConfig   `yaml:"auth"`
	Crypto CryptoConfig `yaml:"crypto"`
	Server ServerConfig `yaml:"server"`
}

type DataConfig struct {
	// Dir holds the local SQLite document store. Empty keeps everything in memory.
	Dir string `yaml:"dir"`
}

type SyncConfig struct {
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxRetries       int           `yaml:"max_retries"`
	BatchSize        int           `yaml:"batch_size"`
}

// Orchestrator converts the section to the orchestrator's config.
func (c SyncConfig) Orchestrator() syncpkg.Config {
	return syncpkg.Config{
		AutoSyncInterval: c.AutoSyncInterval,
		RetryDelay:       c.RetryDelay,
		MaxRetries:       c.MaxRetries,
		BatchSize:        c.BatchSize,
	}
}

type RemoteConfig struct {
	Backend string    `yaml:"backend"`
	DSN     string    `yaml:"dsn"` // postgres only
	S3      s3.Config `yaml:"s3"`
}

type AuthConfig struct {
	JWTKey string `yaml:"jwt_key"`
}

type CryptoConfig struct {
	// Secret derives the field-encryption root key. Empty disables encryption.
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sc := syncpkg.DefaultConfig()
	return &Config{
		Log:  logging.Config{Level: "info", Format: "json", RecentSize: logging.DefaultRecentSize},
		Data: DataConfig{Dir: "./data"},
		Sync: SyncConfig{
			AutoSyncInterval: sc.AutoSyncInterval,
			RetryDelay:       sc.RetryDelay,
			MaxRetries:       sc.MaxRetries,
			BatchSize:        sc.BatchSize,
		},
		Remote: RemoteConfig{
			Backend: BackendMemory,
			S3:      s3.Config{Provider: s3.ProviderAWS, Prefix: "medadhere"},
		},
		Server: ServerConfig{Addr: "127.0.0.1:8090"},
	}
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates. No environment is read.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	set("MEDADHERE_DATA_DIR", &c.Data.Dir)
	set("MEDADHERE_REMOTE_BACKEND", &c.Remote.Backend)
	set("MEDADHERE_REMOTE_DSN", &c.Remote.DSN)
	set("MEDADHERE_JWT_KEY", &c.Auth.JWTKey)
	set("MEDADHERE_ENCRYPTION_SECRET", &c.Crypto.Secret)
	set("MEDADHERE_LOG_LEVEL", &c.Log.Level)
	set("MEDADHERE_ADDR", &c.Server.Addr)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Sync.Orchestrator().Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	switch c.Remote.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote: postgres backend requires dsn")
		}
	case BackendS3:
		if c.Remote.S3.Bucket == "" {
			return fmt.Errorf("remote: s3 backend requires bucket")
		}
	default:
		return fmt.Errorf("remote: unknown backend %q", c.Remote.Backend)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}

	if c.Auth.JWTKey != "" && len(c.Auth.JWTKey) < 16 {
		return fmt.Errorf("auth: jwt_key must be at least 16 bytes")
	}
	return nil
}
