package pattern

import "pnf-signal-lab/internal/domain"

const (
	poleReverseMinBoxes  = 5
	poleReverseRetrace   = 0.5
	poleReverseBreakaway = 5 // boxes past the double top/bottom
)

// LowHighPole matches LOW_POLE_FT_BUY: a falling pole at least half retraced by
// the next column, a double top formed after the pole, and the open column
// clearing that top by more than five boxes. HIGH_POLE_FT_SELL is the mirror.
func LowHighPole(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		first := in.Columns[0].Index
		for p := last.Index - 3; p >= first; p-- {
			pole, next := in.Column(p), in.Column(p+1)
			if pole.Direction == last.Direction || pole.BoxCount < poleReverseMinBoxes {
				continue
			}
			height := pole.Range()
			if height <= 0 {
				continue
			}

			if last.Direction == domain.DirectionX {
				retrace := (next.TopPrice - pole.BottomPrice) / height
				if retrace <= poleReverseRetrace {
					continue
				}
				b := topBand(between(in, domain.DirectionX, p, last.Index), opts.Tolerance, opts.MinSeparation)
				if len(b.members) < 2 || last.TopBox()-maxTopBox(b.members) <= poleReverseBreakaway {
					continue
				}
				return []*domain.PatternMatch{{
					Kind:             domain.PatternLowPoleFTBuy,
					Direction:        domain.SignalBuy,
					Priority:         PriorityPoleReverse,
					Level:            b.level,
					SupportingLevels: append([]float64{pole.BottomPrice}, tops(b.members)...),
					Metrics:          map[string]float64{"pole_boxes": float64(pole.BoxCount), "retrace": retrace},
				}}
			}

			retrace := (pole.TopPrice - next.BottomPrice) / height
			if retrace <= poleReverseRetrace {
				continue
			}
			b := bottomBand(between(in, domain.DirectionO, p, last.Index), opts.Tolerance, opts.MinSeparation)
			if len(b.members) < 2 || minBottomBox(b.members)-last.BottomBox() <= poleReverseBreakaway {
				continue
			}
			return []*domain.PatternMatch{{
				Kind:             domain.PatternHighPoleFTSell,
				Direction:        domain.SignalSell,
				Priority:         PriorityPoleReverse,
				Level:            b.level,
				SupportingLevels: append([]float64{pole.TopPrice}, bottoms(b.members)...),
				Metrics:          map[string]float64{"pole_boxes": float64(pole.BoxCount), "retrace": retrace},
			}}
		}
		return nil
	}
}

func maxTopBox(cols []*domain.Column) int {
	out := cols[0].TopBox()
	for _, c := range cols[1:] {
		out = max(out, c.TopBox())
	}
	return out
}

func minBottomBox(cols []*domain.Column) int {
	out := cols[0].BottomBox()
	for _, c := range cols[1:] {
		out = min(out, c.BottomBox())
	}
	return out
}
