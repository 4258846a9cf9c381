package domain

import (
	"fmt"
	"strconv"
)

// PatternKind identifies an entry in the pattern catalogue.
type PatternKind string

// Pattern catalogue.
const (
	PatternDoubleTopBuy           PatternKind = "DOUBLE_TOP_BUY"
	PatternTripleTopBuy           PatternKind = "TRIPLE_TOP_BUY"
	PatternQuadrupleTopBuy        PatternKind = "QUADRUPLE_TOP_BUY"
	PatternDoubleBottomSell       PatternKind = "DOUBLE_BOTTOM_SELL"
	PatternTripleBottomSell       PatternKind = "TRIPLE_BOTTOM_SELL"
	PatternQuadrupleBottomSell    PatternKind = "QUADRUPLE_BOTTOM_SELL"
	PatternDoubleTopBuyEMA        PatternKind = "DOUBLE_TOP_BUY_EMA"
	PatternTripleTopBuyEMA        PatternKind = "TRIPLE_TOP_BUY_EMA"
	PatternQuadrupleTopBuyEMA     PatternKind = "QUADRUPLE_TOP_BUY_EMA"
	PatternDoubleBottomSellEMA    PatternKind = "DOUBLE_BOTTOM_SELL_EMA"
	PatternTripleBottomSellEMA    PatternKind = "TRIPLE_BOTTOM_SELL_EMA"
	PatternQuadrupleBottomSellEMA PatternKind = "QUADRUPLE_BOTTOM_SELL_EMA"
	PatternTurtleBreakoutBuy      PatternKind = "TURTLE_BREAKOUT_BUY"
	PatternTurtleBreakoutSell     PatternKind = "TURTLE_BREAKOUT_SELL"
	PatternCatapultBuy            PatternKind = "CATAPULT_BUY"
	PatternCatapultSell           PatternKind = "CATAPULT_SELL"
	PatternPoleFollowThroughBuy   PatternKind = "POLE_FOLLOW_THROUGH_BUY"
	PatternPoleFollowThroughSell  PatternKind = "POLE_FOLLOW_THROUGH_SELL"
	PatternAFTAnchorBreakoutBuy   PatternKind = "AFT_ANCHOR_BREAKOUT_BUY"
	PatternAFTAnchorBreakdownSell PatternKind = "AFT_ANCHOR_BREAKDOWN_SELL"
	PatternLowPoleFTBuy           PatternKind = "LOW_POLE_FT_BUY"
	PatternHighPoleFTSell         PatternKind = "HIGH_POLE_FT_SELL"
	PatternTweezerBullish         PatternKind = "TWEEZER_BULLISH"
	PatternTweezerBearish         PatternKind = "TWEEZER_BEARISH"
	PatternABCBullish             PatternKind = "ABC_BULLISH"
	PatternABCBearish             PatternKind = "ABC_BEARISH"

	// PatternVolumeMomentum is emitted by the indicator trigger, not by the P&F classifier.
	PatternVolumeMomentum PatternKind = "VOLUME_MOMENTUM_BREAKOUT"
)

// Signal is the trade direction of a pattern match.
type Signal string

// Signal directions.
const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// TrendPosition describes the trigger close relative to the trend reference.
type TrendPosition string

// Trend positions.
const (
	TrendAbove   TrendPosition = "ABOVE"
	TrendBelow   TrendPosition = "BELOW"
	TrendUnknown TrendPosition = "UNKNOWN" // trend reference not yet available
)

// TrendContext records the trend filter state at trigger time.
type TrendContext struct {
	EMA      *float64      `json:"ema,omitempty"`
	Close    float64       `json:"close"`
	Position TrendPosition `json:"position"`
}

// NewTrendContext builds a TrendContext from a close and an optional EMA value.
func NewTrendContext(close float64, ema *float64) TrendContext {
	tc := TrendContext{Close: close, Position: TrendUnknown}
	if ema == nil {
		return tc
	}
	v := *ema
	tc.EMA = &v
	if close > v {
		tc.Position = TrendAbove
	} else if close < v {
		tc.Position = TrendBelow
	}
	return tc
}

// PatternMatch is an alert produced when a catalogue pattern completes.
// Corresponds to pattern_alerts table in PostgreSQL.
type PatternMatch struct {
	ID                 string             `json:"id"` // deterministic, see idhash.ComputeAlertID
	InstrumentID       string             `json:"instrument_id"`
	Kind               PatternKind        `json:"kind"`
	Direction          Signal             `json:"direction"`
	Priority           int                `json:"priority"` // lower wins
	TriggerColumnIndex int                `json:"trigger_column_index"`
	TriggerPrice       float64            `json:"trigger_price"` // close of the triggering candle
	TriggerTime        int64              `json:"trigger_time"`  // Unix ms
	Level              float64            `json:"level"`         // resistance/support that was broken
	SupportingLevels   []float64          `json:"supporting_levels"`
	Trend              TrendContext       `json:"trend"`
	Target             *float64           `json:"target,omitempty"`
	Metrics            map[string]float64 `json:"metrics,omitempty"`
}

// Key returns the one-shot key of the match.
func (m *PatternMatch) Key() AlertKey {
	return NewAlertKey(m.InstrumentID, m.Kind, m.Level)
}

// AlertKey identifies one pattern instance: (instrument, kind, level).
type AlertKey struct {
	InstrumentID string      `json:"instrument_id"`
	Kind         PatternKind `json:"kind"`
	Level        string      `json:"level"` // price rounded to 4 decimals
}

// NewAlertKey builds an AlertKey, normalizing the level.
func NewAlertKey(instrumentID string, kind PatternKind, level float64) AlertKey {
	return AlertKey{
		InstrumentID: instrumentID,
		Kind:         kind,
		Level:        strconv.FormatFloat(level, 'f', 4, 64),
	}
}

// String renders the key as instrument|kind|level.
func (k AlertKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.InstrumentID, k.Kind, k.Level)
}

// IsBullish reports whether the signal is BUY.
func (s Signal) IsBullish() bool {
	return s == SignalBuy
}
