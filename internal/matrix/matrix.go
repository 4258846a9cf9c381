// Package matrix scores an instrument's P&F charts across several box sizes.
package matrix

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
	"pnf-signal-lab/internal/tracker"
)

// DefaultBoxSizes are 0.25%, 0.5%, 1% and 1.5%.
var DefaultBoxSizes = []float64{0.0025, 0.005, 0.01, 0.015}

// SuperAlertThreshold is the absolute total score that confirms a super alert.
const SuperAlertThreshold = 6

// Strength bands.
const (
	StrengthSuperBullish   = "SUPER BULLISH"
	StrengthBullish        = "BULLISH"
	StrengthNeutralBullish = "NEUTRAL BULLISH"
	StrengthNeutral        = "NEUTRAL"
	StrengthNeutralBearish = "NEUTRAL BEARISH"
	StrengthBearish        = "BEARISH"
	StrengthSuperBearish   = "SUPER BEARISH"
)

// Config configures a Calculator.
type Config struct {
	BoxSizes []float64
	Tracker  tracker.Config // Chart.BoxSizePct is replaced per box size
	Workers  int
}

// DefaultConfig returns the standard matrix settings.
func DefaultConfig() Config {
	return Config{
		BoxSizes: DefaultBoxSizes,
		Tracker:  tracker.DefaultConfig(),
		Workers:  4,
	}
}

// Calculator computes matrix scores.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if len(cfg.BoxSizes) == 0 {
		cfg.BoxSizes = DefaultBoxSizes
	}
	if cfg.Tracker.Chart.ReversalBoxes == 0 {
		cfg.Tracker = tracker.DefaultConfig()
	}
	for _, b := range cfg.BoxSizes {
		chart := cfg.Tracker.Chart
		chart.BoxSizePct = b
		if err := chart.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Calculator{cfg: cfg}, nil
}

// Score computes the matrix for one instrument's candles, one chart per box size.
func (c *Calculator) Score(ctx context.Context, instrumentID string, candles []*domain.Candle) (*domain.MatrixResult, error) {
	scores := make([]domain.MatrixScore, len(c.cfg.BoxSizes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, box := range c.cfg.BoxSizes {
		i, box := i, box
		g.Go(func() error {
			s, err := c.scoreBox(gctx, instrumentID, box, candles)
			if err != nil {
				return fmt.Errorf("box %.4f: %w", box, err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matrix %s: %w", instrumentID, err)
	}

	res := &domain.MatrixResult{InstrumentID: instrumentID, Scores: scores}
	for _, s := range scores {
		res.TotalScore += s.Score
	}
	res.Strength = Strength(res.TotalScore)
	res.SuperAlertEligible = abs(res.TotalScore) >= SuperAlertThreshold
	if n := len(candles); n > 0 {
		res.CalculatedAt = candles[n-1].Timestamp
	}
	return res, nil
}

func (c *Calculator) scoreBox(ctx context.Context, instrumentID string, box float64, candles []*domain.Candle) (domain.MatrixScore, error) {
	cfg := c.cfg.Tracker
	cfg.Chart.BoxSizePct = box
	cfg.Logger = nil
	t, err := tracker.New(instrumentID, cfg, nil)
	if err != nil {
		return domain.MatrixScore{}, err
	}

	var matches []*domain.PatternMatch
	for i, candle := range candles {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return domain.MatrixScore{}, err
			}
		}
		m, err := t.Feed(candle)
		if err != nil {
			return domain.MatrixScore{}, err
		}
		matches = append(matches, m...)
	}

	s := domain.MatrixScore{BoxSizePct: box}
	if n := len(candles); n > 0 {
		s.LatestPrice = candles[n-1].Close
	}
	cols := t.Columns()
	if len(cols) == 0 {
		return s, nil
	}
	latest := cols[len(cols)-1]

	var bullish, bearish bool
	for _, m := range matches {
		if m.TriggerColumnIndex != latest.Index {
			continue
		}
		s.Patterns = append(s.Patterns, m.Kind)
		if m.Direction.IsBullish() {
			bullish = true
		} else {
			bearish = true
		}
	}
	sort.Slice(s.Patterns, func(i, j int) bool { return s.Patterns[i] < s.Patterns[j] })

	switch {
	case bullish && latest.Direction == domain.DirectionX:
		s.ColumnType, s.Score = domain.MatrixColumnDTB, 2
	case bearish && latest.Direction == domain.DirectionO:
		s.ColumnType, s.Score = domain.MatrixColumnDBB, -2
	case latest.Direction == domain.DirectionX:
		s.ColumnType, s.Score = domain.MatrixColumnX, 1
	default:
		s.ColumnType, s.Score = domain.MatrixColumnO, -1
	}
	return s, nil
}

// ScoreAll loads each instrument's candles in [from, to] and scores them.
// Instruments without candles are left out.
func (c *Calculator) ScoreAll(ctx context.Context, store storage.CandleStore, instruments []string, from, to int64) ([]*domain.MatrixResult, error) {
	results := make([]*domain.MatrixResult, len(instruments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, inst := range instruments {
		i, inst := i, inst
		g.Go(func() error {
			candles, err := store.GetByTimeRange(gctx, inst, from, to)
			if err != nil {
				return fmt.Errorf("load %s: %w", inst, err)
			}
			if len(candles) == 0 {
				return nil
			}
			res, err := c.Score(gctx, inst, candles)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].InstrumentID < out[j].InstrumentID
	})
	return out, nil
}

// Strength maps a total score to its band.
func Strength(total int) string {
	switch {
	case total >= 8:
		return StrengthSuperBullish
	case total >= 6:
		return StrengthBullish
	case total >= 2:
		return StrengthNeutralBullish
	case total >= -1:
		return StrengthNeutral
	case total >= -5:
		return StrengthNeutralBearish
	case total >= -6:
		return StrengthBearish
	default:
		return StrengthSuperBearish
	}
}

// Confirms reports whether the matrix backs a super alert in direction dir.
func Confirms(res *domain.MatrixResult, dir domain.Signal) bool {
	if res == nil || !res.SuperAlertEligible {
		return false
	}
	if dir == domain.SignalBuy {
		return res.TotalScore >= SuperAlertThreshold
	}
	return res.TotalScore <= -SuperAlertThreshold
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
