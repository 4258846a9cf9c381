// Package tracker runs the incremental chart pipeline for one instrument:
// candles feed the column builder, anchors and EMA follow the chart, and the
// classifier is evaluated whenever the chart changes.
package tracker

import (
	"fmt"

	"github.com/rs/zerolog"

	"pnf-signal-lab/internal/anchor"
	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/pattern"
	"pnf-signal-lab/internal/pnf"
	"pnf-signal-lab/internal/trend"
)

// Config configures a Tracker.
type Config struct {
	Chart          pnf.Config
	AnchorMinBoxes int
	EMAPeriod      int
	Pattern        pattern.Options
	Registry       *pattern.Registry // nil selects the full catalogue
	Logger         *zerolog.Logger
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		Chart:          pnf.DefaultConfig(),
		AnchorMinBoxes: anchor.DefaultMinBoxCount,
		EMAPeriod:      trend.DefaultPeriod,
		Pattern:        pattern.DefaultOptions(),
	}
}

// Tracker holds one instrument's chart state. Not safe for concurrent use.
type Tracker struct {
	instrumentID string
	cfg          Config
	builder      *pnf.Builder
	ema          *trend.EMA
	classifier   *pattern.Classifier
	alerted      pattern.AlertedSet
	anchors      []domain.AnchorPoint // closed columns inside the classifier window
	closed       int
	log          zerolog.Logger
}

// New creates a tracker. A nil alerted set gets a fresh in-memory set.
func New(instrumentID string, cfg Config, alerted pattern.AlertedSet) (*Tracker, error) {
	b, err := pnf.NewBuilder(cfg.Chart)
	if err != nil {
		return nil, err
	}
	if cfg.AnchorMinBoxes <= 0 {
		cfg.AnchorMinBoxes = anchor.DefaultMinBoxCount
	}
	if alerted == nil {
		alerted = pattern.NewAlertedSet()
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("instrument", instrumentID).Logger()
	}
	return &Tracker{
		instrumentID: instrumentID,
		cfg:          cfg,
		builder:      b,
		ema:          trend.NewEMA(cfg.EMAPeriod),
		classifier:   pattern.NewClassifier(cfg.Registry, cfg.Pattern),
		alerted:      alerted,
		log:          log,
	}, nil
}

// InstrumentID returns the instrument the tracker follows.
func (t *Tracker) InstrumentID() string {
	return t.instrumentID
}

// Feed applies a candle and returns the new pattern matches it completed.
func (t *Tracker) Feed(c *domain.Candle) ([]*domain.PatternMatch, error) {
	if c != nil && c.InstrumentID != t.instrumentID {
		return nil, fmt.Errorf("%w: candle for %q fed to tracker of %q", pnf.ErrInvalidInput, c.InstrumentID, t.instrumentID)
	}
	d, err := t.builder.Feed(c)
	if err != nil {
		return nil, err
	}
	t.ema.Update(c.Close)
	t.closed += len(d.Closed)

	for i := range d.Closed {
		if d.Closed[i].BoxCount >= t.cfg.AnchorMinBoxes {
			t.anchors = append(t.anchors, anchor.FromColumn(&d.Closed[i]))
		}
	}
	if len(d.Closed) > 0 {
		t.trimAnchors(t.builder.Open().Index - t.classifier.Options().WindowSize())
	}
	if !d.Changed {
		return nil, nil
	}

	cols := t.builder.Tail(t.classifier.Options().WindowSize())
	in := pattern.Input{
		InstrumentID: t.instrumentID,
		Columns:      cols,
		Anchors:      t.windowAnchors(d.Open, cols[0].Index),
		Trend:        t.ema.Pointer(),
		Close:        c.Close,
		Timestamp:    c.Timestamp,
		BoxWidth:     t.builder.BoxWidth(),
	}
	matches, err := t.classifier.Detect(in, t.alerted)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		t.log.Debug().
			Str("kind", string(m.Kind)).
			Float64("level", m.Level).
			Int("column", m.TriggerColumnIndex).
			Msg("pattern detected")
	}
	return matches, nil
}

// windowAnchors returns anchors at or after the first window column, including
// the open column when it is already large enough.
func (t *Tracker) windowAnchors(open *domain.Column, first int) []domain.AnchorPoint {
	out := anchor.Prune(t.anchors, open.Index, open.Index-first)
	if open.BoxCount >= t.cfg.AnchorMinBoxes {
		out = append(out, anchor.FromColumn(open))
	}
	return out
}

// trimAnchors drops anchors of columns before first. Anchors are appended in
// column order, so they form a prefix.
func (t *Tracker) trimAnchors(first int) {
	n := 0
	for n < len(t.anchors) && t.anchors[n].ColumnIndex < first {
		n++
	}
	if n == 0 {
		return
	}
	kept := copy(t.anchors, t.anchors[n:])
	clear(t.anchors[kept:])
	t.anchors = t.anchors[:kept]
}

// Columns returns a copy of the chart, open column last.
func (t *Tracker) Columns() []domain.Column {
	return t.builder.Columns()
}

// Anchors returns anchors over the whole chart.
func (t *Tracker) Anchors() []domain.AnchorPoint {
	return anchor.Compute(t.builder.Columns(), t.cfg.AnchorMinBoxes)
}

// EMA returns the current trend reference, nil while unseeded.
func (t *Tracker) EMA() *float64 {
	return t.ema.Pointer()
}

// ClosedColumns returns how many columns have been closed so far.
func (t *Tracker) ClosedColumns() int {
	return t.closed
}

// BoxWidth returns the chart box width.
func (t *Tracker) BoxWidth() float64 {
	return t.builder.BoxWidth()
}
