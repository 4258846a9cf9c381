// Package main runs the live scanner: a WebSocket candle feed drives per-instrument
// P&F trackers and new patterns are delivered to Kafka and the log.
// HTTP: /health, /metrics (Prometheus), /matrix?instrument=ID, /status.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pnf-signal-lab/internal/config"
	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/feed"
	"pnf-signal-lab/internal/live"
	"pnf-signal-lab/internal/logging"
	"pnf-signal-lab/internal/matrix"
	"pnf-signal-lab/internal/notify"
	"pnf-signal-lab/internal/observability"
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
	feedURL := flag.String("feed-url", cfg.FeedURL, "WebSocket candle feed endpoint")
	instruments := flag.String("instruments", "", "Comma-separated instruments (default: all in the candle store)")
	seedLookback := flag.Duration("seed-lookback", 24*time.Hour, "History replayed from the candle store on start (0 disables)")
	storeCandles := flag.Bool("store-candles", false, "Persist received candles to the candle store")
	useMatrix := flag.Bool("matrix", true, "Score the multi-box matrix for delivered alerts")
	alertTTL := flag.Duration("alert-ttl", 0, "Expiry of one-shot keys in Redis (0 keeps them)")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "HTTP address for health, metrics and matrix")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	migrate := flag.Bool("migrate", false, "Apply database migrations on connect")
	logLevel := flag.String("log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	logging.Init("scan", *logLevel)
	logger := logging.Component("scan")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if *feedURL == "" {
		logger.Fatal().Msg("--feed-url or FEED_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	set, cleanup, err := stores.Open(ctx, cfg, stores.Options{
		UseMemory: *useMemory,
		Migrate:   *migrate,
		AlertTTL:  *alertTTL,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer cleanup()

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create publisher")
	}
	defer publisher.Close()

	trk, err := cfg.TrackerConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("tracker config")
	}
	scanCfg := live.Config{Tracker: trk, Logger: logger}
	if *useMatrix {
		mcfg := matrix.DefaultConfig()
		mcfg.Tracker = trk
		calc, err := matrix.NewCalculator(mcfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("matrix config")
		}
		scanCfg.Matrix = calc
	}
	scanner, err := live.NewScanner(scanCfg, set.Alerted, set.Alerts, publisher)
	if err != nil {
		logger.Fatal().Err(err).Msg("create scanner")
	}

	insts := splitList(*instruments)
	if len(insts) == 0 {
		if insts, err = set.Candles.ListInstruments(ctx); err != nil {
			logger.Fatal().Err(err).Msg("list instruments")
		}
	}
	if *seedLookback > 0 {
		if err := seed(ctx, scanner, set.Candles, insts, *seedLookback, logger); err != nil {
			logger.Fatal().Err(err).Msg("seed scanner")
		}
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	srv := &http.Server{Addr: *metricsAddr, Handler: newMux(scanner)}
	go func() {
		logger.Info().Str("addr", *metricsAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	client := feed.NewClient(*feedURL, insts, nil, logger)
	raw := make(chan *domain.Candle, 256)
	candles := raw
	var wg sync.WaitGroup
	if *storeCandles {
		candles = make(chan *domain.Candle, 256)
		wg.Add(1)
		go func() {
			defer wg.Done()
			persist(ctx, set.Candles, raw, candles, logger)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := client.Run(ctx, raw); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("feed stopped")
		}
	}()

	logger.Info().Int("instruments", len(insts)).Str("feed", *feedURL).Msg("scanner running")
	err = scanner.Run(ctx, candles)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	srv.Shutdown(shutdownCtx)
	stop()
	cancel()
	wg.Wait()
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("scanner error")
	}
	logger.Info().Msg("shutdown complete")
}

// buildPublisher delivers to the log and, when brokers are configured, to Kafka.
func buildPublisher(cfg *config.Config, logger *zerolog.Logger) (notify.Publisher, error) {
	pubs := notify.Multi{notify.NewLogPublisher(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, kp)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka delivery enabled")
	}
	return pubs, nil
}

// seed warms each instrument with its recent stored history.
func seed(ctx context.Context, scanner *live.Scanner, candles storage.CandleStore, insts []string, lookback time.Duration, logger *zerolog.Logger) error {
	to := time.Now().UnixMilli()
	from := to - lookback.Milliseconds()
	for _, inst := range insts {
		history, err := candles.GetByTimeRange(ctx, inst, from, to)
		if err != nil {
			return fmt.Errorf("load %s: %w", inst, err)
		}
		if len(history) == 0 {
			continue
		}
		if err := scanner.Seed(ctx, inst, history); err != nil {
			// a broken history must not keep the instrument off the live path
			logger.Warn().Err(err).Str("instrument", inst).Msg("seed failed")
		}
	}
	return nil
}

// persist stores every candle and passes it on. Store failures are logged.
func persist(ctx context.Context, store storage.CandleStore, in <-chan *domain.Candle, out chan<- *domain.Candle, logger *zerolog.Logger) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-in:
			start := time.Now()
			err := store.InsertBulk(ctx, []*domain.Candle{c})
			observability.RecordDBQuery("candles", "insert_bulk", time.Since(start).Seconds(), err)
			if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				logger.Warn().Err(err).Str("instrument", c.InstrumentID).Msg("store candle")
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

func newMux(scanner *live.Scanner) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "running",
			"instruments": scanner.Instruments(),
		})
	})

	mux.HandleFunc("/matrix", func(w http.ResponseWriter, r *http.Request) {
		inst := r.URL.Query().Get("instrument")
		if inst == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "instrument is required"})
			return
		}
		res, err := scanner.Matrix(r.Context(), inst)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "instrument not tracked"})
		case err != nil:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, res)
		}
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
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
