package pattern

import "pnf-signal-lab/internal/domain"

// Catapult matches a double top (a, b), a breakout column c above it, and the
// open column extending past c. Columns a, b, c and the open column are the
// last four same-direction columns. Mirrored for SELL.
func Catapult(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		a, b, c := in.Column(last.Index-6), in.Column(last.Index-4), in.Column(last.Index-2)
		if a == nil || b == nil || c == nil {
			return nil
		}

		if last.Direction == domain.DirectionX {
			level := max(a.TopPrice, b.TopPrice)
			if !within(a.TopPrice, level, opts.Tolerance) || !within(b.TopPrice, level, opts.Tolerance) {
				return nil
			}
			if !above(c.TopPrice, level, opts.Tolerance) || last.TopBox() <= c.TopBox() {
				return nil
			}
			return []*domain.PatternMatch{{
				Kind:             domain.PatternCatapultBuy,
				Direction:        domain.SignalBuy,
				Priority:         PriorityCatapult,
				Level:            c.TopPrice,
				SupportingLevels: []float64{a.TopPrice, b.TopPrice, c.TopPrice},
			}}
		}

		level := min(a.BottomPrice, b.BottomPrice)
		if !within(a.BottomPrice, level, opts.Tolerance) || !within(b.BottomPrice, level, opts.Tolerance) {
			return nil
		}
		if !below(c.BottomPrice, level, opts.Tolerance) || last.BottomBox() >= c.BottomBox() {
			return nil
		}
		return []*domain.PatternMatch{{
			Kind:             domain.PatternCatapultSell,
			Direction:        domain.SignalSell,
			Priority:         PriorityCatapult,
			Level:            c.BottomPrice,
			SupportingLevels: []float64{a.BottomPrice, b.BottomPrice, c.BottomPrice},
		}}
	}
}

// PoleFollowThrough matches a pole column, a failed retest that stays below
// the pole top, and the open column breaking above the pole. Mirrored for SELL.
func PoleFollowThrough(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		pole, retest := in.Column(last.Index-4), in.Column(last.Index-2)
		if pole == nil || retest == nil || pole.BoxCount < opts.PoleMinBoxes {
			return nil
		}

		if last.Direction == domain.DirectionX {
			if !below(retest.TopPrice, pole.TopPrice, opts.Tolerance) || !above(last.TopPrice, pole.TopPrice, opts.Tolerance) {
				return nil
			}
			return []*domain.PatternMatch{{
				Kind:             domain.PatternPoleFollowThroughBuy,
				Direction:        domain.SignalBuy,
				Priority:         PriorityPoleFT,
				Level:            pole.TopPrice,
				SupportingLevels: []float64{pole.TopPrice, retest.TopPrice},
				Metrics:          map[string]float64{"pole_boxes": float64(pole.BoxCount)},
			}}
		}

		if !above(retest.BottomPrice, pole.BottomPrice, opts.Tolerance) || !below(last.BottomPrice, pole.BottomPrice, opts.Tolerance) {
			return nil
		}
		return []*domain.PatternMatch{{
			Kind:             domain.PatternPoleFollowThroughSell,
			Direction:        domain.SignalSell,
			Priority:         PriorityPoleFT,
			Level:            pole.BottomPrice,
			SupportingLevels: []float64{pole.BottomPrice, retest.BottomPrice},
			Metrics:          map[string]float64{"pole_boxes": float64(pole.BoxCount)},
		}}
	}
}
