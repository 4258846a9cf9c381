package pattern

import "pnf-signal-lab/internal/domain"

// turtleWindow is how far back the initial breakout column may sit.
const turtleWindow = 10

// Turtle matches a column that broke the range of the turtleRange columns
// before it, a double top formed after that breakout, and the open column
// breaking the double top. Mirrored for SELL.
func Turtle(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		for t := last.Index - 2; t >= last.Index-turtleWindow; t -= 2 {
			col := in.Column(t)
			if col == nil {
				return nil
			}
			hi, lo, ok := rangeBefore(in, t)
			if !ok {
				return nil
			}

			if last.Direction == domain.DirectionX {
				if col.TopPrice <= hi {
					continue
				}
				b := topBand(between(in, domain.DirectionX, t, last.Index), opts.Tolerance, opts.MinSeparation)
				if len(b.members) < 2 || !above(last.TopPrice, b.level, opts.Tolerance) {
					continue
				}
				return []*domain.PatternMatch{{
					Kind:             domain.PatternTurtleBreakoutBuy,
					Direction:        domain.SignalBuy,
					Priority:         PriorityTurtle,
					Level:            b.level,
					SupportingLevels: append([]float64{col.TopPrice}, tops(b.members)...),
				}}
			}

			if col.BottomPrice >= lo {
				continue
			}
			b := bottomBand(between(in, domain.DirectionO, t, last.Index), opts.Tolerance, opts.MinSeparation)
			if len(b.members) < 2 || !below(last.BottomPrice, b.level, opts.Tolerance) {
				continue
			}
			return []*domain.PatternMatch{{
				Kind:             domain.PatternTurtleBreakoutSell,
				Direction:        domain.SignalSell,
				Priority:         PriorityTurtle,
				Level:            b.level,
				SupportingLevels: append([]float64{col.BottomPrice}, bottoms(b.members)...),
			}}
		}
		return nil
	}
}

// rangeBefore returns the high and low of the turtleRange columns before index t.
func rangeBefore(in *Input, t int) (hi, lo float64, ok bool) {
	for k := t - turtleRange; k < t; k++ {
		col := in.Column(k)
		if col == nil {
			return 0, 0, false
		}
		if k == t-turtleRange {
			hi, lo = col.TopPrice, col.BottomPrice
			continue
		}
		hi = max(hi, col.TopPrice)
		lo = min(lo, col.BottomPrice)
	}
	return hi, lo, true
}
