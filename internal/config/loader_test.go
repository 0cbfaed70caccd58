package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx, "")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, RegistryBackendMemory, cfg.Registry.Backend)
		assert.Equal(t, WatcherStrategyEvents, cfg.Watcher.Strategy)
		assert.Equal(t, 200*time.Millisecond, cfg.Watcher.PollInterval)
		assert.Equal(t, []string{"uploads/**"}, cfg.Media.AllowedKeyPatterns)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("AUDIORELAY_SERVER_PORT", "9090")
		t.Setenv("AUDIORELAY_REGISTRY_BACKEND", "redis")
		t.Setenv("AUDIORELAY_REGISTRY_REDIS_ADDR", "localhost:6379")
		t.Setenv("AUDIORELAY_WATCHER_POLL_INTERVAL", "500ms")

		cfg, err := Load(ctx, "")
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, RegistryBackendRedis, cfg.Registry.Backend)
		assert.Equal(t, "localhost:6379", cfg.Registry.RedisAddr)
		assert.Equal(t, 500*time.Millisecond, cfg.Watcher.PollInterval)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "audiorelay.yaml")
		content := `
server:
  port: 7070
media:
  bucket: media-test
  allowed_key_patterns:
    - uploads/**/*.wav
transcode:
  endpoint: http://transcode.local:8443
watcher:
  strategy: poll
  poll_max_wait: 1m
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "media-test", cfg.Media.Bucket)
		assert.Equal(t, []string{"uploads/**/*.wav"}, cfg.Media.AllowedKeyPatterns)
		assert.Equal(t, WatcherStrategyPoll, cfg.Watcher.Strategy)
		assert.Equal(t, time.Minute, cfg.Watcher.PollMaxWait)
	})

	t.Run("MissingExplicitFileFails", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(context.Background(), "")
		require.NoError(t, err)
		cfg.Media.Bucket = "media"
		cfg.Transcode.Endpoint = "http://transcode.local"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port out of range"},
		{"unknown backend", func(c *Config) { c.Registry.Backend = "dynamo" }, "registry.backend"},
		{"redis without addr", func(c *Config) { c.Registry.Backend = RegistryBackendRedis }, "redis_addr"},
		{"unknown strategy", func(c *Config) { c.Watcher.Strategy = "webhook" }, "watcher.strategy"},
		{"missing bucket", func(c *Config) { c.Media.Bucket = "" }, "media.bucket"},
		{"missing processor", func(c *Config) { c.Transcode.Endpoint = "" }, "transcode.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
