// Package backtest scores trigger outputs against the candles that followed them,
// replaying each instrument on a minute cursor so no trigger sees future data.
package backtest

import (
	"context"

	"pnf-signal-lab/internal/domain"
)

// Trigger produces alerts from a candle history.
type Trigger interface {
	// Name returns the trigger identifier.
	Name() string

	// Evaluate is called with every candle up to the cursor. The window is a
	// growing prefix of one instrument's series and is never reused across
	// instruments; stateful triggers may process only the candles they have not
	// seen. Matches must carry TriggerTime and TriggerPrice of a candle in window.
	Evaluate(ctx context.Context, window []*domain.Candle) ([]*domain.PatternMatch, error)
}

// TriggerFactory creates a fresh Trigger for one instrument.
type TriggerFactory func(instrumentID string) (Trigger, error)
