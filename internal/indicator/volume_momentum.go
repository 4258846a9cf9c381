// Package indicator provides candle-indicator triggers that run alongside the
// P&F classifier in backtests and scans.
package indicator

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"pnf-signal-lab/internal/backtest"
	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/idhash"
)

// VolumeMomentumName identifies the volume momentum trigger.
const VolumeMomentumName = "volume_momentum"

// indicatorTail bounds the history handed to ATR and RSI.
const indicatorTail = 100

// Options configures VolumeMomentumTrigger.
type Options struct {
	VolumePeriod int     // candles in the volume average, excluding the current one
	MinRatio     float64 // current volume / average volume
	ATRPeriod    int
	RSIPeriod    int
	MinCandles   int

	// Strong additionally requires the previous candle to be green and a
	// higher close than it.
	Strong bool
}

// DefaultOptions returns the standard breakout thresholds.
func DefaultOptions() Options {
	return Options{
		VolumePeriod: 20,
		MinRatio:     1.5,
		ATRPeriod:    14,
		RSIPeriod:    14,
		MinCandles:   20,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.VolumePeriod < 2 || o.ATRPeriod < 1 || o.RSIPeriod < 2 {
		return fmt.Errorf("invalid indicator periods: volume=%d atr=%d rsi=%d", o.VolumePeriod, o.ATRPeriod, o.RSIPeriod)
	}
	if !(o.MinRatio > 0) {
		return fmt.Errorf("invalid volume ratio %v", o.MinRatio)
	}
	return nil
}

// VolumeMomentumTrigger fires BUY on a high-volume green candle that closes in
// the upper half of its range. It evaluates every candle exactly once.
type VolumeMomentumTrigger struct {
	instrumentID string
	opts         Options
	fed          int
}

// NewVolumeMomentumTrigger creates a trigger for one instrument.
func NewVolumeMomentumTrigger(instrumentID string, opts Options) (*VolumeMomentumTrigger, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.MinCandles < opts.VolumePeriod+1 {
		opts.MinCandles = opts.VolumePeriod + 1
	}
	return &VolumeMomentumTrigger{instrumentID: instrumentID, opts: opts}, nil
}

// Factory returns a backtest.TriggerFactory of VolumeMomentumTriggers.
func Factory(opts Options) backtest.TriggerFactory {
	return func(instrumentID string) (backtest.Trigger, error) {
		return NewVolumeMomentumTrigger(instrumentID, opts)
	}
}

// Name returns the trigger identifier.
func (t *VolumeMomentumTrigger) Name() string {
	return VolumeMomentumName
}

// Evaluate checks each candle appended since the previous call against its own history.
func (t *VolumeMomentumTrigger) Evaluate(ctx context.Context, window []*domain.Candle) ([]*domain.PatternMatch, error) {
	if len(window) < t.fed {
		return nil, fmt.Errorf("window shrank from %d to %d candles", t.fed, len(window))
	}
	var out []*domain.PatternMatch
	for i := t.fed; i < len(window); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if m := t.check(window[:i+1]); m != nil {
			out = append(out, m)
		}
		t.fed = i + 1
	}
	return out, nil
}

// check evaluates the last candle of history.
func (t *VolumeMomentumTrigger) check(history []*domain.Candle) *domain.PatternMatch {
	n := len(history)
	if n < t.opts.MinCandles {
		return nil
	}
	cur := history[n-1]

	vols := make([]float64, t.opts.VolumePeriod)
	for i, c := range history[n-1-t.opts.VolumePeriod : n-1] {
		vols[i] = c.Volume
	}
	sma := talib.Sma(vols, t.opts.VolumePeriod)
	avg := sma[len(sma)-1]
	if !(avg > 0) {
		return nil
	}
	ratio := cur.Volume / avg
	if ratio < t.opts.MinRatio {
		return nil
	}
	if cur.Close <= cur.Open {
		return nil
	}
	position := 0.5
	if rng := cur.High - cur.Low; rng > 0 {
		position = (cur.Close - cur.Low) / rng
	}
	if position < 0.5 {
		return nil
	}
	if t.opts.Strong {
		prev := history[n-2]
		if prev.Close <= prev.Open || cur.Close <= prev.Close {
			return nil
		}
	}

	metrics := map[string]float64{
		"volume_ratio":   ratio,
		"close_position": position * 100,
	}
	tail := history
	if len(tail) > indicatorTail {
		tail = tail[len(tail)-indicatorTail:]
	}
	highs, lows, closes := series(tail)
	if len(tail) > t.opts.ATRPeriod {
		if v := last(talib.Atr(highs, lows, closes, t.opts.ATRPeriod)); !math.IsNaN(v) {
			metrics["atr"] = v
		}
	}
	if len(tail) > t.opts.RSIPeriod {
		if v := last(talib.Rsi(closes, t.opts.RSIPeriod)); !math.IsNaN(v) {
			metrics["rsi"] = v
		}
	}

	key := domain.NewAlertKey(t.instrumentID, domain.PatternVolumeMomentum, cur.Close)
	return &domain.PatternMatch{
		ID:           idhash.ComputeAlertID(key, 0, cur.Timestamp),
		InstrumentID: t.instrumentID,
		Kind:         domain.PatternVolumeMomentum,
		Direction:    domain.SignalBuy,
		Priority:     1,
		TriggerPrice: cur.Close,
		TriggerTime:  cur.Timestamp,
		Level:        cur.Close,
		Trend:        domain.NewTrendContext(cur.Close, nil),
		Metrics:      metrics,
	}
}

func series(candles []*domain.Candle) (highs, lows, closes []float64) {
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	closes = make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	return highs, lows, closes
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return v[len(v)-1]
}

var _ backtest.Trigger = (*VolumeMomentumTrigger)(nil)
