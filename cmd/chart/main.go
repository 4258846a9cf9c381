// Package main prints the P&F chart of one instrument: columns, anchors,
// anchor zones and every pattern the classifier emitted along the way.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"pnf-signal-lab/internal/anchor"
	"pnf-signal-lab/internal/config"
	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/feed"
	"pnf-signal-lab/internal/logging"
	"pnf-signal-lab/internal/lookup"
	"pnf-signal-lab/internal/storage/stores"
	"pnf-signal-lab/internal/tracker"
	"pnf-signal-lab/internal/trend"
)

// chartOutput is the --json payload.
type chartOutput struct {
	InstrumentID string                 `json:"instrument_id"`
	BoxWidth     float64                `json:"box_width"`
	EMA          *float64               `json:"ema,omitempty"`
	Columns      []domain.Column        `json:"columns"`
	ColumnEMA    []*float64             `json:"column_ema"`
	Anchors      []domain.AnchorPoint   `json:"anchors"`
	Zones        []domain.AnchorZone    `json:"zones"`
	Matches      []*domain.PatternMatch `json:"matches"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	instrument := flag.String("instrument", "", "Instrument ID (required)")
	fromStr := flag.String("from", "", "Range start, RFC3339 (default: all history)")
	toStr := flag.String("to", "", "Range end, RFC3339 (default: now)")
	csvPath := flag.String("csv", "", "Read candles from a CSV file instead of the candle store")
	zoneTolerance := flag.Float64("zone-tolerance", 0.01, "Relative width of anchor zones")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	logLevel := flag.String("log-level", "WARN", "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	logging.Init("chart", *logLevel)
	logger := logging.Component("chart")

	if *instrument == "" {
		logger.Fatal().Msg("--instrument is required")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	from, to, err := parseRange(*fromStr, *toStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid range")
	}

	ctx := context.Background()
	candles, err := loadCandles(ctx, cfg, *csvPath, *instrument, from, to)
	if err != nil {
		logger.Fatal().Err(err).Msg("load candles")
	}
	if len(candles) == 0 {
		logger.Fatal().Str("instrument", *instrument).Msg("no candles in range")
	}

	trkCfg, err := cfg.TrackerConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("tracker config")
	}
	trkCfg.Logger = logger
	t, err := tracker.New(*instrument, trkCfg, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("create tracker")
	}

	out := chartOutput{InstrumentID: *instrument}
	for _, c := range candles {
		matches, err := t.Feed(c)
		if err != nil {
			logger.Fatal().Err(err).Int64("timestamp", c.Timestamp).Msg("feed candle")
		}
		out.Matches = append(out.Matches, matches...)
	}
	out.BoxWidth = t.BoxWidth()
	out.EMA = t.EMA()
	out.Columns = t.Columns()
	out.ColumnEMA = columnEMA(candles, out.Columns, trkCfg.EMAPeriod)
	if n := len(out.ColumnEMA); n > 0 && out.EMA != nil && out.ColumnEMA[n-1] != nil &&
		math.Abs(*out.ColumnEMA[n-1]-*out.EMA) > 1e-9*math.Abs(*out.EMA) {
		logger.Warn().Float64("series", *out.ColumnEMA[n-1]).Float64("incremental", *out.EMA).Msg("EMA mismatch")
	}
	out.Anchors = t.Anchors()
	out.Zones = anchor.Zones(out.Anchors, *zoneTolerance)

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			logger.Fatal().Err(err).Msg("encode output")
		}
		return
	}
	printChart(&out, len(candles))
}

// columnEMA samples the EMA series at each column's last candle.
func columnEMA(candles []*domain.Candle, cols []domain.Column, period int) []*float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	idx := make([]int, len(cols))
	for i, col := range cols {
		idx[i] = lookup.IndexAtOrBefore(candles, col.EndTime)
	}
	return trend.SeriesAt(closes, period, idx)
}

func parseRange(fromStr, toStr string) (int64, int64, error) {
	from, to := int64(0), time.Now().UnixMilli()
	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return 0, 0, fmt.Errorf("--from: %w", err)
		}
		from = t.UnixMilli()
	}
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return 0, 0, fmt.Errorf("--to: %w", err)
		}
		to = t.UnixMilli()
	}
	return from, to, nil
}

func loadCandles(ctx context.Context, cfg *config.Config, csvPath, instrument string, from, to int64) ([]*domain.Candle, error) {
	if csvPath == "" {
		set, cleanup, err := stores.Open(ctx, cfg, stores.Options{})
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return set.Candles.GetByTimeRange(ctx, instrument, from, to)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	all, err := feed.ReadCSV(f)
	if err != nil {
		return nil, err
	}
	var out []*domain.Candle
	for _, c := range all {
		if c.InstrumentID == instrument && c.Timestamp >= from && c.Timestamp <= to {
			out = append(out, c)
		}
	}
	return out, nil
}

func printChart(out *chartOutput, candles int) {
	fmt.Printf("=== %s: %d candles, %d columns, box %.6g ===\n", out.InstrumentID, candles, len(out.Columns), out.BoxWidth)
	if out.EMA != nil {
		fmt.Printf("EMA: %.6g\n", *out.EMA)
	}

	fmt.Println()
	fmt.Printf("%5s %3s %5s %12s %12s %12s %20s %6s\n", "IDX", "DIR", "BOXES", "BOTTOM", "TOP", "EMA", "END", "STATE")
	for i, c := range out.Columns {
		state := "open"
		if c.Closed {
			state = "closed"
		}
		ema := "-"
		if i < len(out.ColumnEMA) && out.ColumnEMA[i] != nil {
			ema = fmt.Sprintf("%.6g", *out.ColumnEMA[i])
		}
		fmt.Printf("%5d %3s %5d %12.6g %12.6g %12s %20s %6s\n",
			c.Index, c.Direction, c.BoxCount, c.BottomPrice, c.TopPrice, ema, formatTime(c.EndTime), state)
	}

	if len(out.Anchors) > 0 {
		fmt.Println()
		fmt.Println("Anchors:")
		for _, a := range out.Anchors {
			fmt.Printf("  column %d %s %.6g (strength %d)\n", a.ColumnIndex, a.Direction, a.Price, a.Strength)
		}
	}
	if len(out.Zones) > 0 {
		fmt.Println()
		fmt.Println("Zones:")
		for _, z := range out.Zones {
			fmt.Printf("  %.6g .. %.6g center %.6g (%d anchors, strength %d)\n", z.Low, z.High, z.Center, len(z.Anchors), z.TotalStrength)
		}
	}

	fmt.Println()
	if len(out.Matches) == 0 {
		fmt.Println("No patterns.")
		return
	}
	fmt.Println("Patterns:")
	for _, m := range out.Matches {
		fmt.Printf("  %s %-28s %-4s level %.6g price %.6g column %d\n",
			formatTime(m.TriggerTime), m.Kind, m.Direction, m.Level, m.TriggerPrice, m.TriggerColumnIndex)
	}
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
