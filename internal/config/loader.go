package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g.
// AUDIORELAY_SERVER_PORT=9090.
const EnvPrefix = "AUDIORELAY"

// Load builds the configuration from defaults, an optional config file,
// and environment overrides (highest precedence).
//
// The config file is ./audiorelay.yaml or /etc/audiorelay/audiorelay.yaml
// unless an explicit path is given; a missing file is not an error.
func Load(ctx context.Context, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("audiorelay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/audiorelay")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", true)

	v.SetDefault("registry.backend", RegistryBackendMemory)
	v.SetDefault("registry.redis_addr", "")
	v.SetDefault("registry.redis_password", "")
	v.SetDefault("registry.redis_db", 0)
	v.SetDefault("registry.key_prefix", "audiorelay")

	// Viper only surfaces AutomaticEnv values through Unmarshal for keys
	// it already knows about, so every key gets a default.
	v.SetDefault("media.bucket", "")
	v.SetDefault("media.region", "")
	v.SetDefault("media.endpoint", "")
	v.SetDefault("media.profile", "")
	v.SetDefault("media.access_key_id", "")
	v.SetDefault("media.secret_access_key", "")
	v.SetDefault("media.force_path_style", false)
	v.SetDefault("media.upload_expiry", 10*time.Minute)
	v.SetDefault("media.allowed_key_patterns", []string{"uploads/**"})

	v.SetDefault("transcode.endpoint", "")
	v.SetDefault("transcode.role_arn", "")
	v.SetDefault("transcode.preset_path", "")
	v.SetDefault("transcode.timeout", 10*time.Second)

	v.SetDefault("watcher.strategy", WatcherStrategyEvents)
	v.SetDefault("watcher.poll_interval", 200*time.Millisecond)
	v.SetDefault("watcher.poll_max_wait", 2*time.Minute)

	v.SetDefault("broadcast.rate_limit", 0)
	v.SetDefault("broadcast.max_concurrency", 0)
}
