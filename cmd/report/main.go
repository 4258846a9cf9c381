// Package main renders the report of a stored backtest run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pnf-signal-lab/internal/config"
	"pnf-signal-lab/internal/logging"
	"pnf-signal-lab/internal/metrics"
	"pnf-signal-lab/internal/reporting"
	"pnf-signal-lab/internal/storage/stores"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	runID := flag.String("run-id", "", "Backtest run ID (required)")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated files")
	horizon := flag.String("horizon", metrics.DefaultHorizon, "Horizon used for win rates")
	fixedClock := flag.String("generated-at", "", "Fixed RFC3339 generation time for reproducible output")
	logLevel := flag.String("log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	logging.Init("report", *logLevel)
	logger := logging.Component("report")

	if *runID == "" {
		logger.Fatal().Msg("--run-id is required")
	}

	ctx := context.Background()
	set, cleanup, err := stores.Open(ctx, cfg, stores.Options{Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer cleanup()

	aggs, err := set.Aggregates.GetByRunID(ctx, *runID)
	if err != nil {
		logger.Fatal().Err(err).Msg("load aggregates")
	}
	// runs stored without aggregates get them computed once; aggregates are append-only
	if len(aggs) == 0 {
		aggregator := metrics.NewAggregator(set.Results, set.Aggregates, *horizon)
		if _, err := aggregator.ComputeAndStore(ctx, *runID); err != nil {
			if errors.Is(err, metrics.ErrNoResults) {
				logger.Fatal().Str("run_id", *runID).Msg("run has no results")
			}
			logger.Fatal().Err(err).Msg("compute aggregates")
		}
		for _, e := range aggregator.GetMissingAlertErrors() {
			logger.Warn().Str("run_id", *runID).Msg(e)
		}
	}

	gen := reporting.NewGenerator(set.Results, set.Aggregates, *horizon)
	if *fixedClock != "" {
		t, err := time.Parse(time.RFC3339, *fixedClock)
		if err != nil {
			logger.Fatal().Err(err).Msg("--generated-at must be RFC3339")
		}
		gen = gen.WithClock(func() time.Time { return t.UTC() })
	}
	rep, err := gen.Generate(ctx, *runID, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("generate report")
	}
	results, err := set.Results.GetByRunID(ctx, *runID)
	if err != nil {
		logger.Fatal().Err(err).Msg("load results")
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create output dir")
	}
	files := []struct {
		name    string
		content string
	}{
		{"REPORT.md", reporting.RenderMarkdown(rep)},
		{"PATTERN_METRICS.csv", reporting.RenderCSV(rep.PatternMetrics)},
		{"RESULTS.csv", reporting.RenderResultsCSV(results)},
	}
	fmt.Printf("Report for run %s generated:\n", *runID)
	for _, f := range files {
		path := filepath.Join(*outputDir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			logger.Fatal().Err(err).Str("file", path).Msg("write file")
		}
		fmt.Printf("  - %s\n", path)
	}
}
