package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/metrics"
	"pnf-signal-lab/internal/storage/memory"
)

func f(v float64) *float64 { return &v }

func result(id, inst string, kind domain.PatternKind, dir domain.Signal, ret *float64, ts int64) *domain.BacktestResult {
	return &domain.BacktestResult{
		ID:           id,
		RunID:        "run-1",
		Trigger:      "pnf",
		InstrumentID: inst,
		TriggerPrice: 100,
		TriggerTime:  ts,
		Alert:        &domain.PatternMatch{ID: "a-" + id, InstrumentID: inst, Kind: kind, Direction: dir},
		Horizons: []domain.HorizonResult{
			{Label: "5m", OffsetMs: 5 * domain.MinuteMs, ReturnPct: f(0.1)},
			{Label: "30m", OffsetMs: 30 * domain.MinuteMs, ReturnPct: ret},
		},
	}
}

func setupTestData(t *testing.T) (*memory.BacktestResultStore, *memory.PatternAggregateStore) {
	t.Helper()
	ctx := context.Background()

	results := memory.NewBacktestResultStore()
	aggs := memory.NewPatternAggregateStore()

	rs := []*domain.BacktestResult{
		result("r1", "A", domain.PatternTripleTopBuy, domain.SignalBuy, f(2), 1000),
		result("r2", "B", domain.PatternTripleTopBuy, domain.SignalBuy, f(-1), 2000),
		result("r3", "C", domain.PatternDoubleBottomSell, domain.SignalSell, f(0.5), 3000),
		result("r4", "C", domain.PatternDoubleBottomSell, domain.SignalSell, nil, 4000),
	}
	if err := results.InsertBulk(ctx, rs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if _, err := metrics.NewAggregator(results, aggs, "").ComputeAndStore(ctx, "run-1"); err != nil {
		t.Fatalf("ComputeAndStore failed: %v", err)
	}
	return results, aggs
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
}

func TestGenerate(t *testing.T) {
	results, aggs := setupTestData(t)
	summary := &domain.RunSummary{RunID: "run-1", Trigger: "pnf", Instruments: 4, Processed: 3, Skipped: 1, Errors: []string{"D: boom"}}

	g := NewGenerator(results, aggs, "").WithClock(fixedClock)
	r, err := g.Generate(context.Background(), "run-1", summary)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if r.Trigger != "pnf" || r.Summary.Instruments != 4 || r.Summary.Skipped != 1 || r.Summary.TotalResults != 4 {
		t.Errorf("unexpected summary: %+v", r.Summary)
	}
	if r.Summary.DateRangeStart != 1000 || r.Summary.DateRangeEnd != 4000 {
		t.Errorf("unexpected date range: %d-%d", r.Summary.DateRangeStart, r.Summary.DateRangeEnd)
	}
	if len(r.DataQuality.RunErrors) != 1 {
		t.Errorf("expected run errors to be carried, got %v", r.DataQuality.RunErrors)
	}

	if len(r.PatternMetrics) != 2 || r.PatternMetrics[0].Kind != string(domain.PatternDoubleBottomSell) {
		t.Fatalf("unexpected pattern metrics: %+v", r.PatternMetrics)
	}
	if r.PatternMetrics[1].WinRate != 0.5 {
		t.Errorf("expected triple top win rate 0.5, got %v", r.PatternMetrics[1].WinRate)
	}

	// 2 kinds x 2 horizons
	if len(r.HorizonReturns) != 4 {
		t.Fatalf("expected 4 horizon rows, got %d", len(r.HorizonReturns))
	}
	h := r.HorizonReturns[1] // DOUBLE_BOTTOM_SELL 30m
	if h.Horizon != "30m" || h.Samples != 1 || h.Coverage != 0.5 || h.MeanReturn != 0.5 {
		t.Errorf("unexpected horizon row: %+v", h)
	}

	if len(r.DirectionComparison) != 2 || r.DirectionComparison[0].Direction != "BUY" {
		t.Fatalf("unexpected direction rows: %+v", r.DirectionComparison)
	}
	if r.DirectionComparison[0].ReturnMean != 0.5 || r.DirectionComparison[1].Scored != 1 {
		t.Errorf("unexpected direction comparison: %+v", r.DirectionComparison)
	}

	if len(r.ReplayReferences) != 3 || r.ReplayReferences[0].ResultID != "r1" || r.ReplayReferences[2].ResultID != "r2" {
		t.Errorf("unexpected replay references: %+v", r.ReplayReferences)
	}
}

func TestGenerate_WithoutSummary(t *testing.T) {
	results, aggs := setupTestData(t)
	r, err := NewGenerator(results, aggs, "30m").WithClock(fixedClock).Generate(context.Background(), "run-1", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if r.Trigger != "pnf" || r.Summary.Instruments != 3 {
		t.Errorf("expected trigger and instruments from results, got %q %d", r.Trigger, r.Summary.Instruments)
	}
}

func TestReplayReferences_BestAndWorst(t *testing.T) {
	var rs []*domain.BacktestResult
	for i := 0; i < 20; i++ {
		rs = append(rs, result(string(rune('a'+i)), "A", domain.PatternTripleTopBuy, domain.SignalBuy, f(float64(i)), int64(i)))
	}
	g := NewGenerator(nil, nil, "")
	refs := g.Build("run-1", nil, rs, nil).ReplayReferences
	if len(refs) != 2*DefaultReplayReferences {
		t.Fatalf("expected %d references, got %d", 2*DefaultReplayReferences, len(refs))
	}
	if refs[0].Return != 19 || refs[len(refs)-1].Return != 0 {
		t.Errorf("expected best first and worst last, got %v and %v", refs[0].Return, refs[len(refs)-1].Return)
	}
}

func TestRenderMarkdown(t *testing.T) {
	results, aggs := setupTestData(t)
	r, err := NewGenerator(results, aggs, "").WithClock(fixedClock).Generate(context.Background(), "run-1", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(r)
	for _, want := range []string{
		"# Backtest Report",
		"Generated: 2024-01-15T12:00:00Z",
		"Run: run-1 | Trigger: pnf",
		"## Pattern Metrics",
		"| TRIPLE_TOP_BUY | BUY | 2 | 2 | 2 | 0.5000 |",
		"## Returns by Horizon",
		"## BUY vs SELL",
		"No errors recorded.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// deterministic with a fixed clock
	if md != RenderMarkdown(r) {
		t.Error("markdown not deterministic")
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(&Report{GeneratedAt: fixedClock(), RunID: "none"})
	for _, want := range []string{
		"No pattern metrics available.",
		"No horizon samples available.",
		"No direction comparison available.",
		"No replay references available.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderCSV(t *testing.T) {
	rows := []PatternMetricRow{{Kind: "TRIPLE_TOP_BUY", Direction: "BUY", TotalAlerts: 3, WinRate: 0.5, MaxConsecutiveLosses: 2}}
	out := RenderCSV(rows)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "kind,direction,total_alerts") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "TRIPLE_TOP_BUY,BUY,3,0,0,0.500000,") || !strings.HasSuffix(lines[1], ",2") {
		t.Errorf("unexpected row: %s", lines[1])
	}
}

func TestRenderResultsCSV(t *testing.T) {
	r := result("r1", "NSE_EQ|A,B", domain.PatternTripleTopBuy, domain.SignalBuy, nil, 1000)
	ok := true
	r.WasSuccessful = &ok
	out := RenderResultsCSV([]*domain.BacktestResult{r})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "return_5m,return_30m") {
		t.Errorf("missing horizon columns: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"NSE_EQ|A,B"`) {
		t.Errorf("instrument not quoted: %s", lines[1])
	}
	if !strings.Contains(lines[1], ",0.100000,,") || !strings.HasSuffix(lines[1], ",false,false,false,true") {
		t.Errorf("unexpected row: %s", lines[1])
	}
}
