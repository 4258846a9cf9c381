// Package anchor finds columns whose vertical extent makes them significant
// support/resistance references.
package anchor

import (
	"math"
	"sort"

	"pnf-signal-lab/internal/domain"
)

// DefaultMinBoxCount is the box count a column needs to become an anchor.
const DefaultMinBoxCount = 14

// DefaultZoneTolerance groups anchors whose prices are within 2% of each other.
const DefaultZoneTolerance = 0.02

// Compute returns anchors for columns with BoxCount >= minBoxCount, ordered by column index.
// A non-positive minBoxCount selects DefaultMinBoxCount.
func Compute(columns []domain.Column, minBoxCount int) []domain.AnchorPoint {
	if minBoxCount <= 0 {
		minBoxCount = DefaultMinBoxCount
	}
	out := make([]domain.AnchorPoint, 0)
	for i := range columns {
		col := &columns[i]
		if col.BoxCount < minBoxCount {
			continue
		}
		out = append(out, FromColumn(col))
	}
	return out
}

// FromColumn builds an anchor from a column regardless of its size.
// X columns anchor at their top, O columns at their bottom.
func FromColumn(col *domain.Column) domain.AnchorPoint {
	a := domain.AnchorPoint{
		ColumnIndex: col.Index,
		Direction:   col.Direction,
		BoxLevel:    col.ExtremeBox,
		Strength:    col.BoxCount,
	}
	if col.Direction == domain.DirectionX {
		a.Price = col.TopPrice
	} else {
		a.Price = col.BottomPrice
	}
	return a
}

// Prune keeps anchors whose column lies within lookback columns of latestIndex.
func Prune(anchors []domain.AnchorPoint, latestIndex, lookback int) []domain.AnchorPoint {
	out := make([]domain.AnchorPoint, 0, len(anchors))
	for _, a := range anchors {
		if a.ColumnIndex > latestIndex {
			continue
		}
		if latestIndex-a.ColumnIndex > lookback {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Zones groups anchors by price. An anchor joins a zone when its price is within
// tolerance of the zone's running center; zones with fewer than two anchors are dropped.
// Zones are returned by descending total strength.
func Zones(anchors []domain.AnchorPoint, tolerance float64) []domain.AnchorZone {
	if tolerance <= 0 {
		tolerance = DefaultZoneTolerance
	}
	sorted := make([]domain.AnchorPoint, len(anchors))
	copy(sorted, anchors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price < sorted[j].Price
	})

	var zones []domain.AnchorZone
	var cur *domain.AnchorZone
	sum := 0.0
	for _, a := range sorted {
		if cur != nil && math.Abs(a.Price-cur.Center) <= cur.Center*tolerance {
			cur.Anchors = append(cur.Anchors, a)
			cur.TotalStrength += a.Strength
			cur.High = a.Price
			sum += a.Price
			cur.Center = sum / float64(len(cur.Anchors))
			continue
		}
		if cur != nil {
			zones = append(zones, *cur)
		}
		cur = &domain.AnchorZone{
			Center:        a.Price,
			Low:           a.Price,
			High:          a.Price,
			TotalStrength: a.Strength,
			Anchors:       []domain.AnchorPoint{a},
		}
		sum = a.Price
	}
	if cur != nil {
		zones = append(zones, *cur)
	}

	out := make([]domain.AnchorZone, 0, len(zones))
	for _, z := range zones {
		if len(z.Anchors) >= 2 {
			out = append(out, z)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalStrength > out[j].TotalStrength
	})
	return out
}
