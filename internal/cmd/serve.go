package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soundbarn/audiorelay/internal/config"
	"github.com/soundbarn/audiorelay/internal/observability"
	"github.com/soundbarn/audiorelay/internal/relay"
	"github.com/soundbarn/audiorelay/internal/server"
	"github.com/soundbarn/audiorelay/internal/server/handlers"
	"github.com/soundbarn/audiorelay/internal/transcode"
	"github.com/soundbarn/audiorelay/internal/ws"
	"github.com/soundbarn/audiorelay/pkg/broadcast"
	"github.com/soundbarn/audiorelay/pkg/jobs"
	"github.com/soundbarn/audiorelay/pkg/mediastore"
	"github.com/soundbarn/audiorelay/pkg/registry"
	"github.com/soundbarn/audiorelay/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Start the HTTP/WebSocket server.

The server exposes:
  GET  /ws                the client WebSocket endpoint
  GET  /uploads/presign   presigned upload URL minting
  POST /events/transcode  terminal event intake (events strategy)
  GET  /health, /version  operational probes`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, cfgFile)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	observability.InitServerLogger(cfg.Logging.Level, cfg.Logging.JSON)
	defer observability.Sync()
	logger := observability.ServerLogger

	reg, regChecker, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to registry backend", err)
	}

	store, err := mediastore.New(ctx, mediastore.Config{
		Bucket:             cfg.Media.Bucket,
		Region:             cfg.Media.Region,
		Endpoint:           cfg.Media.Endpoint,
		Profile:            cfg.Media.Profile,
		AccessKeyID:        cfg.Media.AccessKeyID,
		SecretAccessKey:    cfg.Media.SecretAccessKey,
		ForcePathStyle:     cfg.Media.ForcePathStyle,
		UploadExpiry:       cfg.Media.UploadExpiry,
		AllowedKeyPatterns: cfg.Media.AllowedKeyPatterns,
	})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to initialize media store", err)
	}

	processor, err := transcode.NewClient(transcode.Config{
		BaseURL: cfg.Transcode.Endpoint,
		RoleARN: cfg.Transcode.RoleARN,
		Timeout: cfg.Transcode.Timeout,
	}, logger)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid transcoder configuration", err)
	}

	preset := jobs.DefaultPreset()
	if cfg.Transcode.PresetPath != "" {
		preset, err = jobs.LoadPreset(cfg.Transcode.PresetPath)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to load transcode preset", err)
		}
	}

	// The hub's message handler is bound after the relay service exists;
	// no frames arrive before the server starts listening.
	var svc *relay.Service
	hub := ws.NewHub(ws.Config{}, session.NewManager(reg, logger),
		func(ctx context.Context, connectionID string, msg ws.ClientMessage) {
			svc.HandleMessage(ctx, connectionID, msg)
		}, logger)
	defer hub.Close()

	dispatcher := broadcast.NewDispatcher(reg, hub, broadcast.Config{
		RateLimit:      cfg.Broadcast.RateLimit,
		MaxConcurrency: cfg.Broadcast.MaxConcurrency,
	}, logger)

	correlator := jobs.NewCorrelator(processor, hub, logger)

	var (
		watcher relay.Watcher
		intake  handlers.EventIntake
	)
	switch cfg.Watcher.Strategy {
	case config.WatcherStrategyPoll:
		watcher = jobs.NewPoller(processor, correlator,
			cfg.Watcher.PollInterval, cfg.Watcher.PollMaxWait, logger)
	default:
		intake = jobs.NewEventWatcher(correlator, logger)
	}

	svc = relay.NewService(dispatcher, correlator, store, watcher, preset, logger)

	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("registry", regChecker)

	srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Options{
		Hub:         hub,
		Presigner:   store,
		EventIntake: intake,
		Version: handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		},
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	logger.Info("starting audiorelay",
		zap.String("addr", srv.Addr()),
		zap.String("registry_backend", cfg.Registry.Backend),
		zap.String("watcher_strategy", cfg.Watcher.Strategy),
		zap.String("media_bucket", cfg.Media.Bucket))

	if err := srv.Run(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}

	logger.Info("audiorelay stopped")
	return nil
}

// buildRegistry constructs the configured registry backend and a health
// checker probing it.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (registry.Registry, handlers.HealthChecker, error) {
	switch cfg.Registry.Backend {
	case config.RegistryBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Registry.RedisAddr,
			Password: cfg.Registry.RedisPassword,
			DB:       cfg.Registry.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		logger.Info("connected to redis registry", zap.String("addr", cfg.Registry.RedisAddr))
		return registry.NewRedis(rdb, cfg.Registry.KeyPrefix), redisChecker{rdb: rdb}, nil
	default:
		mem := registry.NewMemory()
		return mem, scanChecker{reg: mem}, nil
	}
}

// redisChecker probes the redis backend with a ping.
type redisChecker struct {
	rdb *redis.Client
}

func (c redisChecker) CheckHealth(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// scanChecker probes a registry by enumerating it.
type scanChecker struct {
	reg registry.Registry
}

func (c scanChecker) CheckHealth(ctx context.Context) error {
	return c.reg.Scan(ctx, func(string) error { return nil })
}
