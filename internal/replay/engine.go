// Package replay drives candle series through an engine on a fixed-step time cursor.
package replay

import (
	"context"

	"pnf-signal-lab/internal/domain"
)

// Tick is one cursor step.
type Tick struct {
	Now int64 // cursor time (ms); every candle with Timestamp <= Now is visible

	// Visible is a capacity-capped prefix of the series: appending to it
	// cannot expose candles after Now.
	Visible []*domain.Candle

	// New is the number of candles that became visible in this step,
	// i.e. Visible[len(Visible)-New:].
	New int
}

// Latest returns the newest visible candle, or nil.
func (t *Tick) Latest() *domain.Candle {
	if len(t.Visible) == 0 {
		return nil
	}
	return t.Visible[len(t.Visible)-1]
}

// CursorEngine consumes cursor steps in time order.
type CursorEngine interface {
	// OnTick is called for every step in which at least one candle arrived.
	OnTick(ctx context.Context, tick *Tick) error

	// OnEnd is called once after the last step with every loaded candle visible.
	OnEnd(ctx context.Context, all []*domain.Candle) error
}
