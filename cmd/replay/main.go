// Package main replays a stored backtest run candle by candle and reports every
// result the replay does not reproduce.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pnf-signal-lab/internal/backtest"
	"pnf-signal-lab/internal/config"
	"pnf-signal-lab/internal/logging"
	"pnf-signal-lab/internal/storage/stores"
	"pnf-signal-lab/internal/verification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Parse flags
	runID := flag.String("run-id", "", "Backtest run ID to verify (required)")
	fromTime := flag.String("from", "", "Start of the verified run, RFC3339 (required)")
	triggerName := flag.String("trigger", backtest.PatternTriggerName, "Trigger the run used: pnf or volume_momentum")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	logLevel := flag.String("log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	logging.Init("replay", *logLevel)
	logger := logging.Component("replay")

	// Validate required flags
	if *runID == "" {
		logger.Fatal().Msg("--run-id is required")
	}
	from, err := time.Parse(time.RFC3339, *fromTime)
	if err != nil {
		logger.Fatal().Err(err).Msg("--from must be RFC3339")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	set, cleanup, err := stores.Open(ctx, cfg, stores.Options{Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer cleanup()

	factory, err := cfg.TriggerFactory(*triggerName)
	if err != nil {
		logger.Fatal().Err(err).Msg("build trigger")
	}

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		CandleStore:  set.Candles,
		ResultStore:  set.Results,
		Factory:      factory,
		From:         from.UnixMilli(),
		MaxStaleness: cfg.Backtest.MaxStaleness,
	})

	start := time.Now()
	report, err := verifier.VerifyRun(ctx, *runID)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify run")
	}
	logger.Info().
		Str("run_id", *runID).
		Int("results", report.TotalResults).
		Int("divergent", report.DivergentResults).
		Dur("elapsed", time.Since(start)).
		Msg("replay complete")

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Fatal().Err(err).Msg("encode report")
		}
	} else {
		printReport(report)
	}
	if report.DivergentResults > 0 {
		cleanup()
		os.Exit(2)
	}
}

func printReport(r *verification.VerificationReport) {
	fmt.Println("=== Replay Verification ===")
	fmt.Printf("Run ID:    %s\n", r.RunID)
	fmt.Printf("Results:   %d\n", r.TotalResults)
	fmt.Printf("Matched:   %d\n", r.MatchedResults)
	fmt.Printf("Divergent: %d\n", r.DivergentResults)

	for _, res := range r.Results {
		if res.Match {
			continue
		}
		fmt.Println()
		fmt.Printf("%s (%s, alert %s)\n", res.ResultID, res.InstrumentID, res.AlertID)
		for _, d := range res.Divergences {
			fmt.Printf("  %-24s expected %v, got %v\n", d.Field, d.Expected, d.Actual)
		}
	}
}
