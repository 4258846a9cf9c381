package replay

import (
	"context"
	"fmt"
	"time"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// DefaultStep is the cursor step.
const DefaultStep = time.Minute

// Runner loads candles from storage and replays them on a time cursor.
type Runner struct {
	candles storage.CandleStore
	step    int64 // ms
}

// NewRunner creates a replay runner. A non-positive step selects DefaultStep.
func NewRunner(candles storage.CandleStore, step time.Duration) *Runner {
	if step <= 0 {
		step = DefaultStep
	}
	return &Runner{candles: candles, step: step.Milliseconds()}
}

// Load returns the instrument's candles within [from, to], validated for strict ordering.
func (r *Runner) Load(ctx context.Context, instrumentID string, from, to int64) ([]*domain.Candle, error) {
	candles, err := r.candles.GetByTimeRange(ctx, instrumentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load candles %s: %w", instrumentID, err)
	}
	if err := ValidateOrdering(candles); err != nil {
		return nil, fmt.Errorf("load candles %s: %w", instrumentID, err)
	}
	return candles, nil
}

// Run loads an instrument's candles within [from, to] and replays them through the engine.
// Returns the number of candles replayed.
func (r *Runner) Run(ctx context.Context, instrumentID string, from, to int64, engine CursorEngine) (int, error) {
	candles, err := r.Load(ctx, instrumentID, from, to)
	if err != nil {
		return 0, err
	}
	return len(candles), r.Replay(ctx, candles, engine)
}

// Replay drives already loaded candles through the engine. Steps without new
// candles are skipped. The context is checked between steps.
func (r *Runner) Replay(ctx context.Context, candles []*domain.Candle, engine CursorEngine) error {
	if err := ValidateOrdering(candles); err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}

	start := candles[0].Timestamp
	now := start
	next := 0
	for next < len(candles) {
		if err := ctx.Err(); err != nil {
			return err
		}

		// jump over empty steps
		if ts := candles[next].Timestamp; ts > now {
			now = start + ((ts-start+r.step-1)/r.step)*r.step
		}

		first := next
		for next < len(candles) && candles[next].Timestamp <= now {
			next++
		}

		tick := &Tick{
			Now:     now,
			Visible: candles[:next:next],
			New:     next - first,
		}
		if err := engine.OnTick(ctx, tick); err != nil {
			return err
		}
		now += r.step
	}

	return engine.OnEnd(ctx, candles[:len(candles):len(candles)])
}
