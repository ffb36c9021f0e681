package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/arena/internal/scoresim"
)

// Default configuration constants.
const (
	defaultWorkers   = 2 // multiplier for runtime.NumCPU()
	defaultEditRatio = 0.1
	defaultRunLimit  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		competition = flag.Int64("competition", 0, "Competition to score")
		secret      = flag.String("secret", os.Getenv("ARENA_AUTH_SECRET"), "Token signing secret shared with the server")
		adminID     = flag.Int64("admin", scoresim.DefaultAdminID, "User id used for discovery")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent requests")
		edits       = flag.Float64("edits", defaultEditRatio, "Share of marks corrected after submission")
		inbound     = flag.String("inbound", os.Getenv("ARENA_INBOUND_TOKEN"), "Send corrections through the device relay with this token")
		scale       = flag.Int64("scale", scoresim.DefaultScale, "Mark that counts as 100%")
		timeout     = flag.Duration("timeout", scoresim.DefaultTimeout, "HTTP request timeout")
		outputFile  = flag.String("output", "", "Write submitted sheets to this JSON file")
		logFormat   = flag.String("log-format", "text", "Log format: text or json")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		scoresim.ShowHelp()
		return
	}

	if err := scoresim.SetupLogging(*logFormat, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	cfg := scoresim.Config{
		BaseURL:       *baseURL,
		CompetitionID: *competition,
		AdminID:       *adminID,
		Secret:        *secret,
		Workers:       *workers,
		Timeout:       *timeout,
		EditRatio:     *edits,
		InboundToken:  *inbound,
		Scale:         *scale,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	if _, err := scoresim.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
