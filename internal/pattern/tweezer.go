package pattern

import "pnf-signal-lab/internal/domain"

const (
	tweezerMinBoxes   = 14
	tweezerMaxGap     = 6   // columns between the two anchors
	tweezerMaxSpan    = 6   // columns from the second anchor to the open column
	tweezerBaseFactor = 0.7 // base range relative to anchor range
)

// Tweezer matches two opposite large anchors close together (a V or inverted V),
// a retest of the second anchor's extreme, and the open column breaking it.
func Tweezer(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		for j := len(in.Anchors) - 1; j >= 0; j-- {
			q := in.Anchors[j]
			if q.Direction != last.Direction || q.Strength < tweezerMinBoxes {
				continue
			}
			span := last.Index - q.ColumnIndex
			if span < 4 || span > tweezerMaxSpan {
				continue
			}
			p, ok := tweezerPartner(in, j)
			if !ok {
				continue
			}
			pCol, qCol := in.Column(p.ColumnIndex), in.Column(q.ColumnIndex)
			if pCol == nil || qCol == nil {
				continue
			}
			anchorRange := max(pCol.Range(), qCol.Range())
			if baseRange(in, p.ColumnIndex, q.ColumnIndex) >= tweezerBaseFactor*anchorRange {
				continue
			}

			level := q.Price
			retested := false
			for _, col := range between(in, last.Direction, q.ColumnIndex, last.Index) {
				if last.Direction == domain.DirectionX && within(col.TopPrice, level, opts.Tolerance) {
					retested = true
				}
				if last.Direction == domain.DirectionO && within(col.BottomPrice, level, opts.Tolerance) {
					retested = true
				}
			}
			if !retested {
				continue
			}

			if last.Direction == domain.DirectionX {
				if !above(last.TopPrice, level, opts.Tolerance) {
					continue
				}
				return []*domain.PatternMatch{{
					Kind:             domain.PatternTweezerBullish,
					Direction:        domain.SignalBuy,
					Priority:         PriorityTweezer,
					Level:            level,
					SupportingLevels: []float64{p.Price, q.Price},
				}}
			}
			if !below(last.BottomPrice, level, opts.Tolerance) {
				continue
			}
			return []*domain.PatternMatch{{
				Kind:             domain.PatternTweezerBearish,
				Direction:        domain.SignalSell,
				Priority:         PriorityTweezer,
				Level:            level,
				SupportingLevels: []float64{p.Price, q.Price},
			}}
		}
		return nil
	}
}

// tweezerPartner finds the most recent opposite anchor before anchor j within tweezerMaxGap columns.
func tweezerPartner(in *Input, j int) (domain.AnchorPoint, bool) {
	q := in.Anchors[j]
	for i := j - 1; i >= 0; i-- {
		p := in.Anchors[i]
		if q.ColumnIndex-p.ColumnIndex-1 > tweezerMaxGap {
			break
		}
		if p.Direction != q.Direction && p.Strength >= tweezerMinBoxes {
			return p, true
		}
	}
	return domain.AnchorPoint{}, false
}

// baseRange is the price range of the columns strictly between two indices.
func baseRange(in *Input, from, to int) float64 {
	var hi, lo float64
	seen := false
	for k := from + 1; k < to; k++ {
		col := in.Column(k)
		if col == nil {
			continue
		}
		if !seen {
			hi, lo, seen = col.TopPrice, col.BottomPrice, true
			continue
		}
		hi = max(hi, col.TopPrice)
		lo = min(lo, col.BottomPrice)
	}
	return hi - lo
}
