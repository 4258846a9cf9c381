package metrics

import (
	"math"
	"sort"

	"pnf-signal-lab/internal/domain"
)

// computeFromResults calculates the aggregate of one pattern kind.
// Results are sorted by TriggerTime ASC, ID ASC before computing
// order-dependent metrics (MaxConsecutiveLosses).
// Returns come from the given horizon; results without a sample there are not scored.
func computeFromResults(results []*domain.BacktestResult, horizon string) *domain.PatternAggregate {
	n := len(results)
	agg := &domain.PatternAggregate{TotalAlerts: n}
	if n == 0 {
		return agg
	}

	sorted := make([]*domain.BacktestResult, n)
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TriggerTime != sorted[j].TriggerTime {
			return sorted[i].TriggerTime < sorted[j].TriggerTime
		}
		return sorted[i].ID < sorted[j].ID
	})

	instruments := make(map[string]struct{})
	var returns, mfe, mae []float64
	var hit1, hit2, stops int
	for _, r := range sorted {
		instruments[r.InstrumentID] = struct{}{}
		if ret := r.ReturnAt(horizon); ret != nil {
			returns = append(returns, *ret)
			if *ret > 0 {
				agg.Wins++
			} else {
				agg.Losses++
			}
		}
		if r.MaxFavorableExcursionPct != nil {
			mfe = append(mfe, *r.MaxFavorableExcursionPct)
		}
		if r.MaxAdverseExcursionPct != nil {
			mae = append(mae, *r.MaxAdverseExcursionPct)
		}
		if r.HitTarget1Pct {
			hit1++
		}
		if r.HitTarget2Pct {
			hit2++
		}
		if r.HitStopLoss {
			stops++
		}
	}

	agg.TotalInstruments = len(instruments)
	agg.Scored = len(returns)
	agg.WinRate = computeWinRate(agg.Wins, agg.Scored)
	agg.MFEMean = computeMean(mfe)
	agg.MAEMean = computeMean(mae)
	agg.HitTarget1Rate = computeWinRate(hit1, n)
	agg.HitTarget2Rate = computeWinRate(hit2, n)
	agg.StopLossRate = computeWinRate(stops, n)
	agg.MaxConsecutiveLosses = computeMaxConsecutiveLosses(returns)

	if len(returns) == 0 {
		return agg
	}

	// Sort returns for percentile calculations
	ordered := make([]float64, len(returns))
	copy(ordered, returns)
	sort.Float64s(ordered)

	mean := computeMean(returns)
	agg.ReturnMean = mean
	agg.ReturnMedian = computePercentile(ordered, 0.50)
	agg.ReturnP10 = computePercentile(ordered, 0.10)
	agg.ReturnP25 = computePercentile(ordered, 0.25)
	agg.ReturnP75 = computePercentile(ordered, 0.75)
	agg.ReturnP90 = computePercentile(ordered, 0.90)
	agg.ReturnMin = ordered[0]
	agg.ReturnMax = ordered[len(ordered)-1]
	agg.ReturnStddev = computeStddev(returns, mean)
	return agg
}

// computeWinRate calculates count / total, 0 for an empty total.
func computeWinRate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// computeMean calculates arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxConsecutiveLosses finds the longest streak of returns <= 0.
// Returns must be in chronological order.
func computeMaxConsecutiveLosses(returns []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, r := range returns {
		if r <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
