package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/metrics"
	"pnf-signal-lab/internal/storage"
)

// DefaultReplayReferences is the number of best and worst results referenced.
const DefaultReplayReferences = 5

// Generator produces reports from stored backtest data.
type Generator struct {
	resultStore    storage.BacktestResultStore
	aggregateStore storage.PatternAggregateStore
	horizon        string
	references     int
	now            func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator scoring returns at horizon.
// An empty horizon selects metrics.DefaultHorizon.
func NewGenerator(resultStore storage.BacktestResultStore, aggStore storage.PatternAggregateStore, horizon string) *Generator {
	if horizon == "" {
		horizon = metrics.DefaultHorizon
	}
	return &Generator{
		resultStore:    resultStore,
		aggregateStore: aggStore,
		horizon:        horizon,
		references:     DefaultReplayReferences,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the report of a run. summary may be nil when the run
// summary is not at hand; the instrument counts are then derived from results.
func (g *Generator) Generate(ctx context.Context, runID string, summary *domain.RunSummary) (*Report, error) {
	results, err := g.resultStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	aggs, err := g.aggregateStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load aggregates: %w", err)
	}
	return g.Build(runID, summary, results, aggs), nil
}

// Build assembles a report from loaded data.
func (g *Generator) Build(runID string, summary *domain.RunSummary, results []*domain.BacktestResult, aggs []*domain.PatternAggregate) *Report {
	r := &Report{
		GeneratedAt:         g.now(),
		RunID:               runID,
		Summary:             g.generateSummary(summary, results),
		PatternMetrics:      g.generatePatternMetrics(aggs),
		HorizonReturns:      g.generateHorizonReturns(results),
		DirectionComparison: g.generateDirectionComparison(results),
		ReplayReferences:    g.generateReplayReferences(results),
	}
	if summary != nil {
		r.Trigger = summary.Trigger
		r.DataQuality.RunErrors = summary.Errors
	}
	if r.Trigger == "" && len(results) > 0 {
		r.Trigger = results[0].Trigger
	}
	for _, res := range results {
		if res.Alert == nil {
			r.DataQuality.IntegrityErrors = append(r.DataQuality.IntegrityErrors,
				fmt.Sprintf("result %s has no alert payload", res.ID))
		}
	}
	return r
}

func (g *Generator) generateSummary(summary *domain.RunSummary, results []*domain.BacktestResult) RunSummary {
	s := RunSummary{TotalResults: len(results)}
	if summary != nil {
		s.Instruments = summary.Instruments
		s.Processed = summary.Processed
		s.Skipped = summary.Skipped
		s.Errored = summary.Errored
	} else {
		seen := make(map[string]struct{})
		for _, r := range results {
			seen[r.InstrumentID] = struct{}{}
		}
		s.Instruments = len(seen)
		s.Processed = len(seen)
	}
	for i, r := range results {
		if i == 0 || r.TriggerTime < s.DateRangeStart {
			s.DateRangeStart = r.TriggerTime
		}
		if r.TriggerTime > s.DateRangeEnd {
			s.DateRangeEnd = r.TriggerTime
		}
	}
	return s
}

// generatePatternMetrics builds rows sorted by kind.
func (g *Generator) generatePatternMetrics(aggs []*domain.PatternAggregate) []PatternMetricRow {
	rows := make([]PatternMetricRow, len(aggs))
	for i, agg := range aggs {
		rows[i] = PatternMetricRow{
			Kind:                 string(agg.Kind),
			Direction:            string(agg.Direction),
			TotalAlerts:          agg.TotalAlerts,
			TotalInstruments:     agg.TotalInstruments,
			Scored:               agg.Scored,
			WinRate:              agg.WinRate,
			ReturnMean:           agg.ReturnMean,
			ReturnMedian:         agg.ReturnMedian,
			ReturnP10:            agg.ReturnP10,
			ReturnP90:            agg.ReturnP90,
			MFEMean:              agg.MFEMean,
			MAEMean:              agg.MAEMean,
			HitTarget1Rate:       agg.HitTarget1Rate,
			StopLossRate:         agg.StopLossRate,
			MaxConsecutiveLosses: agg.MaxConsecutiveLosses,
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Kind < rows[j].Kind
	})
	return rows
}

// generateHorizonReturns averages sampled returns per (kind, horizon).
func (g *Generator) generateHorizonReturns(results []*domain.BacktestResult) []HorizonReturnRow {
	type key struct {
		kind  string
		label string
	}
	type acc struct {
		offset  int64
		alerts  int
		samples int
		sum     float64
	}
	groups := make(map[key]*acc)
	for _, r := range results {
		if r.Alert == nil {
			continue
		}
		for _, h := range r.Horizons {
			k := key{kind: string(r.Alert.Kind), label: h.Label}
			a := groups[k]
			if a == nil {
				a = &acc{offset: h.OffsetMs}
				groups[k] = a
			}
			a.alerts++
			if h.ReturnPct != nil {
				a.samples++
				a.sum += *h.ReturnPct
			}
		}
	}

	rows := make([]HorizonReturnRow, 0, len(groups))
	for k, a := range groups {
		row := HorizonReturnRow{
			Kind:     k.kind,
			Horizon:  k.label,
			OffsetMs: a.offset,
			Samples:  a.samples,
			Coverage: float64(a.samples) / float64(a.alerts),
		}
		if a.samples > 0 {
			row.MeanReturn = a.sum / float64(a.samples)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].OffsetMs < rows[j].OffsetMs
	})
	return rows
}

// generateDirectionComparison builds BUY vs SELL rows at the report horizon.
func (g *Generator) generateDirectionComparison(results []*domain.BacktestResult) []DirectionComparisonRow {
	byDir := make(map[domain.Signal]*DirectionComparisonRow)
	sums := make(map[domain.Signal]float64)
	wins := make(map[domain.Signal]int)
	for _, r := range results {
		if r.Alert == nil {
			continue
		}
		d := r.Alert.Direction
		row := byDir[d]
		if row == nil {
			row = &DirectionComparisonRow{Direction: string(d)}
			byDir[d] = row
		}
		row.TotalAlerts++
		if ret := r.ReturnAt(g.horizon); ret != nil {
			row.Scored++
			sums[d] += *ret
			if *ret > 0 {
				wins[d]++
			}
		}
	}

	var rows []DirectionComparisonRow
	for _, d := range []domain.Signal{domain.SignalBuy, domain.SignalSell} {
		row := byDir[d]
		if row == nil {
			continue
		}
		if row.Scored > 0 {
			row.WinRate = float64(wins[d]) / float64(row.Scored)
			row.ReturnMean = sums[d] / float64(row.Scored)
		}
		rows = append(rows, *row)
	}
	return rows
}

// generateReplayReferences lists the best and worst scored results, best first.
func (g *Generator) generateReplayReferences(results []*domain.BacktestResult) []ReplayReferenceRow {
	var rows []ReplayReferenceRow
	for _, r := range results {
		ret := r.ReturnAt(g.horizon)
		if ret == nil || r.Alert == nil {
			continue
		}
		rows = append(rows, ReplayReferenceRow{
			ResultID:     r.ID,
			InstrumentID: r.InstrumentID,
			Kind:         string(r.Alert.Kind),
			TriggerTime:  r.TriggerTime,
			Return:       *ret,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Return != rows[j].Return {
			return rows[i].Return > rows[j].Return
		}
		return rows[i].ResultID < rows[j].ResultID
	})
	if len(rows) <= 2*g.references {
		return rows
	}
	out := append([]ReplayReferenceRow{}, rows[:g.references]...)
	return append(out, rows[len(rows)-g.references:]...)
}
