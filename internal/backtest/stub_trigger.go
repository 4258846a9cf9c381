package backtest

import (
	"context"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/idhash"
)

// StubTrigger fires a BUY alert on preset timestamps and records every window it sees.
type StubTrigger struct {
	fireAt  map[int64]domain.Signal
	windows [][]*domain.Candle
}

// NewStubTrigger creates a stub firing BUY at the given timestamps.
func NewStubTrigger(fireAt ...int64) *StubTrigger {
	s := &StubTrigger{fireAt: make(map[int64]domain.Signal)}
	for _, ts := range fireAt {
		s.fireAt[ts] = domain.SignalBuy
	}
	return s
}

// FireSell makes the stub fire SELL at ts.
func (s *StubTrigger) FireSell(ts int64) *StubTrigger {
	s.fireAt[ts] = domain.SignalSell
	return s
}

// Name returns the trigger identifier.
func (s *StubTrigger) Name() string {
	return "stub"
}

// Evaluate fires when the newest candle is at a preset timestamp.
func (s *StubTrigger) Evaluate(_ context.Context, window []*domain.Candle) ([]*domain.PatternMatch, error) {
	s.windows = append(s.windows, window)
	if len(window) == 0 {
		return nil, nil
	}
	last := window[len(window)-1]
	dir, ok := s.fireAt[last.Timestamp]
	if !ok {
		return nil, nil
	}
	kind := domain.PatternDoubleTopBuy
	if dir == domain.SignalSell {
		kind = domain.PatternDoubleBottomSell
	}
	return []*domain.PatternMatch{{
		ID:           idhash.ComputeAlertID(domain.NewAlertKey(last.InstrumentID, kind, last.Close), 0, last.Timestamp),
		InstrumentID: last.InstrumentID,
		Kind:         kind,
		Direction:    dir,
		TriggerPrice: last.Close,
		TriggerTime:  last.Timestamp,
		Level:        last.Close,
		Trend:        domain.NewTrendContext(last.Close, nil),
	}}, nil
}

// Windows returns the windows passed to Evaluate, for test verification.
func (s *StubTrigger) Windows() [][]*domain.Candle {
	return s.windows
}

var _ Trigger = (*StubTrigger)(nil)
