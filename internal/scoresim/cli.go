package scoresim

import (
	"fmt"
	"os"

	"github.com/okian/arena/pkg/logger"
)

// SetupLogging initializes the global logger with format and level.
func SetupLogging(format string, verbose bool) error {
	if err := logger.InitWithFormat(format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the score simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Arena Score Simulator
=====================

Scores every active participant of a competition with every judge of its
panel, corrects a share of the marks, then checks the published rankings.

Usage:
  go run ./cmd/scoresim -competition 1 -secret $ARENA_AUTH_SECRET [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -competition int
        Competition to score (required)
  -secret string
        Token signing secret shared with the server (required)
  -admin int
        User id used for discovery (default 1)
  -workers int
        Number of concurrent requests (default CPU cores * 2)
  -edits float
        Share of marks corrected after submission (default 0.1)
  -inbound string
        Send corrections through the device relay, replaying each once
        (default $ARENA_INBOUND_TOKEN)
  -scale int
        Mark that counts as 100% (default 10)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Write submitted sheets to this JSON file
  -log-format string
        text or json (default "text")
  -verbose
        Enable debug logging
  -help
        Show this help message
`)
}
