package metrics

import (
	"context"
	"errors"
	"math"
	"testing"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
	"pnf-signal-lab/internal/storage/memory"
)

func f(v float64) *float64 { return &v }

// makeResult creates a result with a 30m return; a nil return leaves the horizon unsampled.
func makeResult(id, inst string, kind domain.PatternKind, ret *float64, triggerTime int64) *domain.BacktestResult {
	dir := domain.SignalBuy
	if kind == domain.PatternDoubleBottomSell {
		dir = domain.SignalSell
	}
	r := &domain.BacktestResult{
		ID:           id,
		RunID:        "run-1",
		Trigger:      "pnf",
		InstrumentID: inst,
		TriggerPrice: 100,
		TriggerTime:  triggerTime,
		Alert:        &domain.PatternMatch{ID: "a-" + id, InstrumentID: inst, Kind: kind, Direction: dir},
		Horizons: []domain.HorizonResult{
			{Label: "5m", OffsetMs: 5 * domain.MinuteMs},
			{Label: "30m", OffsetMs: 30 * domain.MinuteMs, ReturnPct: ret},
		},
	}
	if ret != nil {
		r.MaxFavorableExcursionPct = f(math.Max(*ret, 0) + 0.5)
		r.MaxAdverseExcursionPct = f(math.Min(*ret, 0) - 0.5)
		r.HitTarget1Pct = *r.MaxFavorableExcursionPct >= 1
		r.HitStopLoss = *r.MaxAdverseExcursionPct <= -1
	}
	return r
}

func fixture() []*domain.BacktestResult {
	return []*domain.BacktestResult{
		makeResult("r1", "A", domain.PatternTripleTopBuy, f(2), 1000),
		makeResult("r2", "B", domain.PatternTripleTopBuy, f(-1), 2000),
		makeResult("r3", "A", domain.PatternTripleTopBuy, f(-0.5), 3000),
		makeResult("r4", "C", domain.PatternTripleTopBuy, f(3), 4000),
		makeResult("r5", "C", domain.PatternTripleTopBuy, nil, 5000),
		makeResult("r6", "D", domain.PatternDoubleBottomSell, f(1), 1500),
	}
}

func TestCompute_GroupsByKind(t *testing.T) {
	a := NewAggregator(memory.NewBacktestResultStore(), memory.NewPatternAggregateStore(), "")
	aggs, err := a.Compute("run-1", fixture())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(aggs))
	}
	if aggs[0].Kind != domain.PatternDoubleBottomSell || aggs[1].Kind != domain.PatternTripleTopBuy {
		t.Errorf("aggregates not ordered by kind: %s, %s", aggs[0].Kind, aggs[1].Kind)
	}

	tt := aggs[1]
	if tt.RunID != "run-1" || tt.Trigger != "pnf" || tt.Direction != domain.SignalBuy {
		t.Errorf("identity not set: %+v", tt)
	}
	if tt.TotalAlerts != 5 || tt.TotalInstruments != 3 || tt.Scored != 4 {
		t.Errorf("unexpected counts: alerts=%d instruments=%d scored=%d", tt.TotalAlerts, tt.TotalInstruments, tt.Scored)
	}
	if tt.Wins != 2 || tt.Losses != 2 || tt.WinRate != 0.5 {
		t.Errorf("unexpected wins: %d/%d rate %v", tt.Wins, tt.Losses, tt.WinRate)
	}
	if math.Abs(tt.ReturnMean-0.875) > 1e-9 {
		t.Errorf("expected mean 0.875, got %v", tt.ReturnMean)
	}
	// sorted returns: -1, -0.5, 2, 3
	if math.Abs(tt.ReturnMedian-0.75) > 1e-9 || tt.ReturnMin != -1 || tt.ReturnMax != 3 {
		t.Errorf("unexpected distribution: median=%v min=%v max=%v", tt.ReturnMedian, tt.ReturnMin, tt.ReturnMax)
	}
	// chronological returns: 2, -1, -0.5, 3
	if tt.MaxConsecutiveLosses != 2 {
		t.Errorf("expected 2 consecutive losses, got %d", tt.MaxConsecutiveLosses)
	}
	if tt.HitTarget1Rate != 0.4 || tt.StopLossRate != 0.4 {
		t.Errorf("unexpected rates: t1=%v sl=%v", tt.HitTarget1Rate, tt.StopLossRate)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := NewAggregator(nil, nil, "")
	first, err := a.Compute("run-1", fixture())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	// reversed input order
	rs := fixture()
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	second, err := a.Compute("run-1", rs)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	for i := range first {
		if *first[i] != *second[i] {
			t.Errorf("aggregate %d differs:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestCompute_CustomHorizon(t *testing.T) {
	a := NewAggregator(nil, nil, "5m")
	aggs, err := a.Compute("run-1", fixture())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	for _, agg := range aggs {
		if agg.Scored != 0 || agg.WinRate != 0 {
			t.Errorf("expected nothing scored at 5m, got %+v", agg)
		}
	}
}

func TestCompute_MissingAlerts(t *testing.T) {
	rs := fixture()
	rs[0].Alert = nil
	rs = append(rs, &domain.BacktestResult{ID: "orphan"})

	a := NewAggregator(nil, nil, "")
	if _, err := a.Compute("run-1", rs); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	errs := a.GetMissingAlertErrors()
	if len(errs) != 2 || errs[0] != "result orphan has no alert payload" {
		t.Errorf("unexpected data quality errors: %v", errs)
	}
}

func TestComputeAndStore(t *testing.T) {
	ctx := context.Background()
	results := memory.NewBacktestResultStore()
	aggs := memory.NewPatternAggregateStore()
	if err := results.InsertBulk(ctx, fixture()); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	a := NewAggregator(results, aggs, "")
	got, err := a.ComputeAndStore(ctx, "run-1")
	if err != nil {
		t.Fatalf("ComputeAndStore failed: %v", err)
	}
	stored, err := aggs.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(stored) != len(got) {
		t.Errorf("expected %d stored aggregates, got %d", len(got), len(stored))
	}

	// append-only
	if _, err := a.ComputeAndStore(ctx, "run-1"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestComputeAggregates_NoResults(t *testing.T) {
	a := NewAggregator(memory.NewBacktestResultStore(), memory.NewPatternAggregateStore(), "")
	if _, err := a.ComputeAggregates(context.Background(), "missing"); !errors.Is(err, ErrNoResults) {
		t.Errorf("expected ErrNoResults, got %v", err)
	}
}
