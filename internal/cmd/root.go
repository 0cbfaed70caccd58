// Package cmd wires the audiorelay CLI.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundbarn/audiorelay/internal/observability"
)

// versionInfo is the build identity injected at link time.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records the build identity before Execute runs.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile  string
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "audiorelay",
	Short: "WebSocket relay for audio compression jobs",
	Long: `audiorelay keeps a registry of live WebSocket connections, fans
broadcast messages out to all of them, and correlates asynchronous audio
transcode jobs back to the connection that requested them.

Clients connect over /ws, request presigned upload URLs over HTTP, and
receive STARTED/COMPLETE/ERROR envelopes as their jobs progress.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger(logLevel, logJSON)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./audiorelay.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")

	rootCmd.Version = versionInfo.Version
	rootCmd.SetVersionTemplate("{{.Use}} {{.Version}}\n")
}

// exitErr carries a process exit code alongside the failure.
type exitErr struct {
	code    int
	message string
	err     error
}

func (e *exitErr) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *exitErr) Unwrap() error { return e.err }

// exitError creates an error that makes the CLI exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitErr{code: code, message: message, err: err}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	defer observability.Sync()

	rootCmd.Version = versionInfo.Version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitErr
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}
