package backtest

import (
	"context"
	"fmt"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/tracker"
)

// PatternTriggerName identifies the P&F classifier trigger.
const PatternTriggerName = "pnf"

// PatternTrigger runs the P&F chart pipeline over the window.
type PatternTrigger struct {
	tracker *tracker.Tracker
	fed     int
	lastTs  int64
}

// NewPatternTrigger creates a PatternTrigger for one instrument with its own alerted set.
func NewPatternTrigger(instrumentID string, cfg tracker.Config) (*PatternTrigger, error) {
	t, err := tracker.New(instrumentID, cfg, nil)
	if err != nil {
		return nil, err
	}
	return &PatternTrigger{tracker: t}, nil
}

// PatternTriggerFactory returns a factory of PatternTriggers sharing cfg.
func PatternTriggerFactory(cfg tracker.Config) TriggerFactory {
	return func(instrumentID string) (Trigger, error) {
		return NewPatternTrigger(instrumentID, cfg)
	}
}

// Name returns the trigger identifier.
func (p *PatternTrigger) Name() string {
	return PatternTriggerName
}

// Evaluate feeds the candles appended since the previous call.
func (p *PatternTrigger) Evaluate(ctx context.Context, window []*domain.Candle) ([]*domain.PatternMatch, error) {
	if len(window) < p.fed || (p.fed > 0 && window[p.fed-1].Timestamp != p.lastTs) {
		return nil, fmt.Errorf("window is not an extension of the %d candles already seen", p.fed)
	}

	var out []*domain.PatternMatch
	for _, c := range window[p.fed:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := p.tracker.Feed(c)
		if err != nil {
			return nil, err
		}
		p.fed++
		p.lastTs = c.Timestamp
		out = append(out, matches...)
	}
	return out, nil
}

var _ Trigger = (*PatternTrigger)(nil)
