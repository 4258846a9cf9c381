package pattern

import "pnf-signal-lab/internal/domain"

const (
	aftBuyMinBoxes  = 25
	aftSellMinBoxes = 14
	aftSellMaxSpan  = 8
)

// aftBuySpans are the column distances at which an anchor breakout counts.
var aftBuySpans = map[int]bool{4: true, 6: true, 8: true}

// AFTAnchor matches the open column breaking the extreme of a recent large anchor
// column that no intermediate column has broken.
func AFTAnchor(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		for i := len(in.Anchors) - 1; i >= 0; i-- {
			a := in.Anchors[i]
			if a.Direction != last.Direction || a.ColumnIndex >= last.Index {
				continue
			}
			span := last.Index - a.ColumnIndex

			if last.Direction == domain.DirectionX {
				if a.Strength < aftBuyMinBoxes || !aftBuySpans[span] {
					continue
				}
				if brokenAbove(in, a, last.Index) || last.TopPrice <= a.Price {
					continue
				}
				return []*domain.PatternMatch{{
					Kind:             domain.PatternAFTAnchorBreakoutBuy,
					Direction:        domain.SignalBuy,
					Priority:         PriorityAFT,
					Level:            a.Price,
					SupportingLevels: []float64{a.Price},
					Metrics:          map[string]float64{"anchor_boxes": float64(a.Strength), "span": float64(span)},
				}}
			}

			if a.Strength < aftSellMinBoxes || span > aftSellMaxSpan {
				continue
			}
			if brokenBelow(in, a, last.Index) || last.BottomPrice >= a.Price {
				continue
			}
			return []*domain.PatternMatch{{
				Kind:             domain.PatternAFTAnchorBreakdownSell,
				Direction:        domain.SignalSell,
				Priority:         PriorityAFT,
				Level:            a.Price,
				SupportingLevels: []float64{a.Price},
				Metrics:          map[string]float64{"anchor_boxes": float64(a.Strength), "span": float64(span)},
			}}
		}
		return nil
	}
}

// brokenAbove reports whether a column between the anchor and the open column
// topped the anchor, or the window does not cover that range.
func brokenAbove(in *Input, a domain.AnchorPoint, to int) bool {
	for k := a.ColumnIndex + 1; k < to; k++ {
		col := in.Column(k)
		if col == nil || col.TopPrice > a.Price {
			return true
		}
	}
	return false
}

func brokenBelow(in *Input, a domain.AnchorPoint, to int) bool {
	for k := a.ColumnIndex + 1; k < to; k++ {
		col := in.Column(k)
		if col == nil || col.BottomPrice < a.Price {
			return true
		}
	}
	return false
}
