package pattern

import (
	"math"
	"sort"

	"pnf-signal-lab/internal/domain"
)

func within(price, ref, tol float64) bool {
	return math.Abs(price-ref) <= ref*tol
}

func above(price, ref, tol float64) bool {
	return price > ref*(1+tol)
}

func below(price, ref, tol float64) bool {
	return price < ref*(1-tol)
}

func ptr(v float64) *float64 {
	return &v
}

// prior returns the closed columns of dir within lookback columns before the
// open one, most recent first.
func prior(in *Input, dir domain.Direction, lookback int) []*domain.Column {
	n := len(in.Columns)
	var out []*domain.Column
	for i := n - 2; i >= 0 && i >= n-1-lookback; i-- {
		if in.Columns[i].Direction == dir {
			out = append(out, &in.Columns[i])
		}
	}
	return out
}

// between returns the columns of dir strictly between two chart indices, most recent first.
func between(in *Input, dir domain.Direction, from, to int) []*domain.Column {
	var out []*domain.Column
	for k := to - 1; k > from; k-- {
		col := in.Column(k)
		if col != nil && col.Direction == dir {
			out = append(out, col)
		}
	}
	return out
}

// band is a set of columns whose extremes cluster around a level.
type band struct {
	level   float64
	members []*domain.Column // most recent first
}

// topBand groups columns whose top lies within tol of the highest top.
// Candidates are taken most recent first; a candidate closer than minSep
// columns to an accepted member is skipped.
func topBand(cols []*domain.Column, tol float64, minSep int) band {
	return makeBand(cols, tol, minSep, func(c *domain.Column) float64 { return c.TopPrice }, true)
}

// bottomBand mirrors topBand around the lowest bottom.
func bottomBand(cols []*domain.Column, tol float64, minSep int) band {
	return makeBand(cols, tol, minSep, func(c *domain.Column) float64 { return c.BottomPrice }, false)
}

func makeBand(cols []*domain.Column, tol float64, minSep int, price func(*domain.Column) float64, high bool) band {
	if len(cols) == 0 {
		return band{}
	}
	level := price(cols[0])
	for _, c := range cols[1:] {
		if p := price(c); (high && p > level) || (!high && p < level) {
			level = p
		}
	}

	var b band
	b.level = level
	for _, c := range cols {
		p := price(c)
		if high && p < level*(1-tol) {
			continue
		}
		if !high && p > level*(1+tol) {
			continue
		}
		if !separated(b.members, c, minSep) {
			continue
		}
		b.members = append(b.members, c)
	}
	return b
}

func separated(members []*domain.Column, c *domain.Column, minSep int) bool {
	for _, m := range members {
		d := m.Index - c.Index
		if d < 0 {
			d = -d
		}
		if d < minSep {
			return false
		}
	}
	return true
}

// tops returns member tops ordered by column index.
func tops(cols []*domain.Column) []float64 {
	return levels(cols, func(c *domain.Column) float64 { return c.TopPrice })
}

// bottoms returns member bottoms ordered by column index.
func bottoms(cols []*domain.Column) []float64 {
	return levels(cols, func(c *domain.Column) float64 { return c.BottomPrice })
}

func levels(cols []*domain.Column, price func(*domain.Column) float64) []float64 {
	sorted := make([]*domain.Column, len(cols))
	copy(sorted, cols)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	out := make([]float64, len(sorted))
	for i, c := range sorted {
		out[i] = price(c)
	}
	return out
}
