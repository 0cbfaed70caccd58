package main

import (
	"os"

	"github.com/soundbarn/audiorelay/internal/cmd"
)

// Build identity, injected via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
