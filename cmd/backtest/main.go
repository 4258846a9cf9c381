package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pnf-signal-lab/internal/backtest"
	"pnf-signal-lab/internal/config"
	"pnf-signal-lab/internal/feed"
	"pnf-signal-lab/internal/logging"
	"pnf-signal-lab/internal/orchestrator"
	"pnf-signal-lab/internal/reporting"
	"pnf-signal-lab/internal/storage"
	"pnf-signal-lab/internal/storage/stores"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env values as defaults)
	fromStr := flag.String("from", "", "Range start, RFC3339 (required)")
	toStr := flag.String("to", "", "Range end, RFC3339 (required)")
	instruments := flag.String("instruments", "", "Comma-separated instruments (default: all in the candle store)")
	triggerName := flag.String("trigger", backtest.PatternTriggerName, "Trigger: pnf or volume_momentum")
	horizon := flag.String("horizon", "30m", "Horizon used for win rates in aggregates and the report")
	workers := flag.Int("workers", cfg.Backtest.Workers, "Parallel instruments")
	verify := flag.Bool("verify", false, "Replay-verify stored results after the run")
	outputDir := flag.String("output-dir", "", "Write REPORT.md, PATTERN_METRICS.csv and RESULTS.csv here")
	outputJSON := flag.Bool("json", false, "Print the run summary as JSON")

	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	csvPath := flag.String("csv", "", "Load candles from a CSV file before the run")
	migrate := flag.Bool("migrate", false, "Apply database migrations on connect")
	logLevel := flag.String("log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	logging.Init("backtest", *logLevel)
	logger := logging.Component("backtest")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	from, err := time.Parse(time.RFC3339, *fromStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("--from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, *toStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("--to must be RFC3339")
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

	set, cleanup, err := stores.Open(ctx, cfg, stores.Options{UseMemory: *useMemory, Migrate: *migrate, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer cleanup()

	if *csvPath != "" {
		n, err := loadCSV(ctx, set.Candles, *csvPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("load csv")
		}
		logger.Info().Int("candles", n).Str("file", *csvPath).Msg("candles loaded")
	}

	factory, err := cfg.TriggerFactory(*triggerName)
	if err != nil {
		logger.Fatal().Err(err).Msg("build trigger")
	}

	runnerCfg := cfg.RunnerConfig()
	runnerCfg.Workers = *workers
	runnerCfg.Trigger = strings.ToLower(strings.TrimSpace(*triggerName))
	orch := orchestrator.New(orchestrator.Options{
		CandleStore:    set.Candles,
		ResultStore:    set.Results,
		AggregateStore: set.Aggregates,
		Factory:        factory,
		Runner:         runnerCfg,
		Horizon:        *horizon,
		Verify:         *verify,
		Logger:         logger,
	})

	start := time.Now()
	result, err := orch.Run(ctx, splitList(*instruments), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest failed")
	}
	logger.Info().
		Str("run_id", result.Summary.RunID).
		Int("results", result.ResultsStored).
		Dur("elapsed", time.Since(start)).
		Msg("backtest complete")

	if *outputDir != "" {
		if err := writeReport(ctx, set, result, *horizon, *outputDir); err != nil {
			logger.Fatal().Err(err).Msg("write report")
		}
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			logger.Fatal().Err(err).Msg("encode result")
		}
		return
	}
	printSummary(result)
}

func loadCSV(ctx context.Context, candles storage.CandleStore, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	parsed, err := feed.ReadCSV(f)
	if err != nil {
		return 0, err
	}
	if err := candles.InsertBulk(ctx, parsed); err != nil {
		return 0, err
	}
	return len(parsed), nil
}

func writeReport(ctx context.Context, set *stores.Set, result *orchestrator.RunResult, horizon, dir string) error {
	gen := reporting.NewGenerator(set.Results, set.Aggregates, horizon)
	rep, err := gen.Generate(ctx, result.Summary.RunID, &result.Summary)
	if err != nil {
		return err
	}
	results, err := set.Results.GetByRunID(ctx, result.Summary.RunID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[string]string{
		"REPORT.md":           reporting.RenderMarkdown(rep),
		"PATTERN_METRICS.csv": reporting.RenderCSV(rep.PatternMetrics),
		"RESULTS.csv":         reporting.RenderResultsCSV(results),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func printSummary(result *orchestrator.RunResult) {
	s := result.Summary
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:       %s\n", s.RunID)
	fmt.Printf("Trigger:      %s\n", s.Trigger)
	fmt.Printf("Range:        %s .. %s\n", time.UnixMilli(s.From).UTC().Format(time.RFC3339), time.UnixMilli(s.To).UTC().Format(time.RFC3339))
	fmt.Printf("Instruments:  %d (processed %d, skipped %d, errored %d)\n", s.Instruments, s.Processed, s.Skipped, s.Errored)
	fmt.Printf("Triggers:     %d\n", s.Triggers)
	fmt.Printf("Stored:       %d\n", result.ResultsStored)

	if len(result.Aggregates) > 0 {
		fmt.Println()
		fmt.Printf("%-28s %8s %6s %6s %10s\n", "PATTERN", "ALERTS", "WINS", "LOSSES", "WIN RATE")
		for _, a := range result.Aggregates {
			rate := "-"
			if a.Scored > 0 {
				rate = fmt.Sprintf("%.1f%%", a.WinRate*100)
			}
			fmt.Printf("%-28s %8d %6d %6d %10s\n", a.Kind, a.TotalAlerts, a.Wins, a.Losses, rate)
		}
	}
	if v := result.Verification; v != nil {
		fmt.Println()
		fmt.Printf("Verification: %d/%d matched, %d divergent\n", v.MatchedResults, v.TotalResults, v.DivergentResults)
	}
	for _, e := range append(s.Errors, result.Errors...) {
		fmt.Printf("ERROR: %s\n", e)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
