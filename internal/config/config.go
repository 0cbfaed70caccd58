// Package config loads and validates the service configuration.
//
// Every environment-derived value the system depends on (bucket name,
// processor endpoint, role ARN) lives here and is passed explicitly into
// component constructors; nothing reads ambient process state directly.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Media     MediaConfig     `mapstructure:"media"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the server logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// RegistryConfig selects and configures the connection registry backend.
type RegistryConfig struct {
	// Backend is "memory" or "redis".
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// MediaConfig configures the media bucket.
type MediaConfig struct {
	Bucket             string        `mapstructure:"bucket"`
	Region             string        `mapstructure:"region"`
	Endpoint           string        `mapstructure:"endpoint"`
	Profile            string        `mapstructure:"profile"`
	AccessKeyID        string        `mapstructure:"access_key_id"`
	SecretAccessKey    string        `mapstructure:"secret_access_key"`
	ForcePathStyle     bool          `mapstructure:"force_path_style"`
	UploadExpiry       time.Duration `mapstructure:"upload_expiry"`
	AllowedKeyPatterns []string      `mapstructure:"allowed_key_patterns"`
}

// TranscodeConfig configures the external processor client.
type TranscodeConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	RoleARN    string        `mapstructure:"role_arn"`
	PresetPath string        `mapstructure:"preset_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// WatcherConfig selects the job status watcher strategy.
type WatcherConfig struct {
	// Strategy is "events" (default) or "poll".
	Strategy     string        `mapstructure:"strategy"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollMaxWait  time.Duration `mapstructure:"poll_max_wait"`
}

// BroadcastConfig tunes the fan-out dispatcher.
type BroadcastConfig struct {
	RateLimit      float64 `mapstructure:"rate_limit"`
	MaxConcurrency int     `mapstructure:"max_concurrency"`
}

// Watcher strategies.
const (
	WatcherStrategyEvents = "events"
	WatcherStrategyPoll   = "poll"
)

// Registry backends.
const (
	RegistryBackendMemory = "memory"
	RegistryBackendRedis  = "redis"
)

// Validate checks cross-field constraints needed to actually serve.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	}

	switch c.Registry.Backend {
	case RegistryBackendMemory:
	case RegistryBackendRedis:
		if c.Registry.RedisAddr == "" {
			return fmt.Errorf("config: registry.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown registry.backend %q", c.Registry.Backend)
	}

	switch c.Watcher.Strategy {
	case WatcherStrategyEvents, WatcherStrategyPoll:
	default:
		return fmt.Errorf("config: unknown watcher.strategy %q", c.Watcher.Strategy)
	}

	if c.Media.Bucket == "" {
		return fmt.Errorf("config: media.bucket is required")
	}
	if c.Transcode.Endpoint == "" {
		return fmt.Errorf("config: transcode.endpoint is required")
	}

	return nil
}
