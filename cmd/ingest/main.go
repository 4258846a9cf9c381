// Package main imports candle CSV files into the candle store.
//
// Usage: ingest [flags] file.csv [file.csv ...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pnf-signal-lab/internal/config"
	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/feed"
	"pnf-signal-lab/internal/logging"
	"pnf-signal-lab/internal/observability"
	"pnf-signal-lab/internal/replay"
	"pnf-signal-lab/internal/storage"
	"pnf-signal-lab/internal/storage/stores"
)

// stats counts the outcome of an import.
type stats struct {
	Read       int
	Inserted   int
	Duplicates int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	batchSize := flag.Int("batch-size", 1000, "Candles per insert")
	migrate := flag.Bool("migrate", true, "Apply database migrations before import")
	logLevel := flag.String("log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	logging.Init("ingest", *logLevel)
	logger := logging.Component("ingest")

	if flag.NArg() == 0 {
		logger.Fatal().Msg("at least one CSV file is required")
	}
	if *batchSize < 1 {
		logger.Fatal().Int("batch_size", *batchSize).Msg("--batch-size must be positive")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("interrupting import")
		cancel()
	}()

	set, cleanup, err := stores.Open(ctx, cfg, stores.Options{Migrate: *migrate, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer cleanup()

	var total stats
	for _, path := range flag.Args() {
		start := time.Now()
		s, err := importFile(ctx, set.Candles, path, *batchSize, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("file", path).Msg("import failed")
		}
		logger.Info().
			Str("file", path).
			Int("read", s.Read).
			Int("inserted", s.Inserted).
			Int("duplicates", s.Duplicates).
			Dur("elapsed", time.Since(start)).
			Msg("file imported")
		total.Read += s.Read
		total.Inserted += s.Inserted
		total.Duplicates += s.Duplicates
	}

	fmt.Printf("Imported %d of %d candles (%d duplicates skipped)\n", total.Inserted, total.Read, total.Duplicates)
}

func importFile(ctx context.Context, store storage.CandleStore, path string, batchSize int, logger *zerolog.Logger) (stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return stats{}, err
	}
	defer f.Close()

	candles, err := feed.ReadCSV(f)
	if err != nil {
		return stats{}, err
	}
	replay.SortCandles(candles)

	s := stats{Read: len(candles)}
	for start := 0; start < len(candles); start += batchSize {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		end := min(start+batchSize, len(candles))
		inserted, dups, err := insertBatch(ctx, store, candles[start:end])
		s.Inserted += inserted
		s.Duplicates += dups
		if err != nil {
			return s, err
		}
		logger.Debug().Int("offset", start).Int("inserted", inserted).Msg("batch stored")
	}
	return s, nil
}

// insertBatch inserts a batch; when the batch hits existing rows it falls back
// to row-by-row inserts so re-imports only skip what is already stored.
func insertBatch(ctx context.Context, store storage.CandleStore, batch []*domain.Candle) (int, int, error) {
	start := time.Now()
	err := store.InsertBulk(ctx, batch)
	observability.RecordDBQuery("candles", "insert_bulk", time.Since(start).Seconds(), err)
	if err == nil {
		return len(batch), 0, nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return 0, 0, err
	}

	inserted, dups := 0, 0
	for _, c := range batch {
		err := store.InsertBulk(ctx, []*domain.Candle{c})
		switch {
		case err == nil:
			inserted++
		case errors.Is(err, storage.ErrDuplicateKey):
			dups++
		default:
			return inserted, dups, err
		}
	}
	return inserted, dups, nil
}
