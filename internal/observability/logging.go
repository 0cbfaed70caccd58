// Package observability holds the process-wide structured loggers.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Package-level loggers. They default to no-ops so code paths that log
// before initialization never nil-panic.
var (
	// CLILogger is used by command-line entry points.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the long-running server and its components.
	ServerLogger = zap.NewNop()
)

// InitCLILogger initializes CLILogger. When json is false a
// console-friendly encoder is used.
func InitCLILogger(level string, json bool) {
	CLILogger = build(level, json)
}

// InitServerLogger initializes ServerLogger.
func InitServerLogger(level string, json bool) {
	ServerLogger = build(level, json)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}

func build(level string, json bool) *zap.Logger {
	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
