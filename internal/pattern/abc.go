package pattern

import "pnf-signal-lab/internal/domain"

const (
	abcMinBoxes = 15
	abcSlope    = 0.01 // fraction of the anchor price per column
)

// ABC matches a large anchor column followed by a correction held under a
// 45-degree trend line from the anchor, and the open column crossing that line.
// Requires the close on the breakout side of the EMA. The target projects the
// anchor height from the close.
func ABC(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		if in.Trend == nil {
			return nil
		}
		bullish := last.Direction == domain.DirectionX
		if bullish && in.Close <= *in.Trend {
			return nil
		}
		if !bullish && in.Close >= *in.Trend {
			return nil
		}

		for i := len(in.Anchors) - 1; i >= 0; i-- {
			a := in.Anchors[i]
			if a.Direction != last.Direction || a.Strength < abcMinBoxes || a.ColumnIndex > last.Index-2 {
				continue
			}
			anchorCol := in.Column(a.ColumnIndex)
			if anchorCol == nil {
				continue
			}
			line := func(k int) float64 {
				step := abcSlope * float64(k-a.ColumnIndex)
				if bullish {
					return a.Price * (1 - step)
				}
				return a.Price * (1 + step)
			}

			// only rallies (bullish) or bounces (bearish) are capped by the line
			held := true
			for k := a.ColumnIndex + 2; k < last.Index; k += 2 {
				col := in.Column(k)
				if col == nil || (bullish && col.TopPrice > line(k)) || (!bullish && col.BottomPrice < line(k)) {
					held = false
					break
				}
			}
			if !held {
				continue
			}

			cross := line(last.Index)
			height := anchorCol.Range()
			if bullish {
				if cross <= 0 || last.TopPrice <= cross {
					continue
				}
				return []*domain.PatternMatch{{
					Kind:             domain.PatternABCBullish,
					Direction:        domain.SignalBuy,
					Priority:         PriorityABC,
					Level:            a.Price,
					SupportingLevels: []float64{a.Price, cross},
					Target:           ptr(in.Close + height),
					Metrics:          map[string]float64{"anchor_boxes": float64(a.Strength), "line": cross},
				}}
			}
			if last.BottomPrice >= cross {
				continue
			}
			return []*domain.PatternMatch{{
				Kind:             domain.PatternABCBearish,
				Direction:        domain.SignalSell,
				Priority:         PriorityABC,
				Level:            a.Price,
				SupportingLevels: []float64{a.Price, cross},
				Target:           ptr(in.Close - height),
				Metrics:          map[string]float64{"anchor_boxes": float64(a.Strength), "line": cross},
			}}
		}
		return nil
	}
}
