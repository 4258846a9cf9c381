package verification

import (
	"context"
	"errors"
	"testing"

	"pnf-signal-lab/internal/backtest"
	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/pnf"
	"pnf-signal-lab/internal/storage/memory"
	"pnf-signal-lab/internal/tracker"
)

const t0 int64 = 1_700_000_000_000

func ptrFloat64(v float64) *float64 {
	return &v
}

func rising(inst string, minutes int) []*domain.Candle {
	out := make([]*domain.Candle, 0, minutes+1)
	for i := 0; i <= minutes; i++ {
		p := 100 + 0.01*float64(i)
		out = append(out, &domain.Candle{
			InstrumentID: inst,
			Timestamp:    t0 + int64(i)*domain.MinuteMs,
			Open:         p,
			High:         p,
			Low:          p,
			Close:        p,
			Volume:       1,
		})
	}
	return out
}

func stubFactory(fireAt ...int64) backtest.TriggerFactory {
	return func(string) (backtest.Trigger, error) {
		return backtest.NewStubTrigger(fireAt...), nil
	}
}

// runAndStore backtests the instruments and persists the results.
func runAndStore(t *testing.T, candles *memory.CandleStore, factory backtest.TriggerFactory, from, to int64) (*memory.BacktestResultStore, *backtest.Run) {
	t.Helper()
	ctx := context.Background()
	runner, err := backtest.NewRunner(candles, factory, backtest.RunnerConfig{})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	run, err := runner.Run(ctx, nil, from, to)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	results := memory.NewBacktestResultStore()
	if err := results.InsertBulk(ctx, run.Results); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	return results, run
}

func seedCandles(t *testing.T, series ...[]*domain.Candle) *memory.CandleStore {
	t.Helper()
	store := memory.NewCandleStore()
	for _, s := range series {
		if err := store.InsertBulk(context.Background(), s); err != nil {
			t.Fatalf("InsertBulk failed: %v", err)
		}
	}
	return store
}

func TestCompareMatches_ExactMatch(t *testing.T) {
	m := &domain.PatternMatch{
		ID:                 "a1",
		InstrumentID:       "inst",
		Kind:               domain.PatternDoubleTopBuy,
		Direction:          domain.SignalBuy,
		TriggerColumnIndex: 4,
		TriggerPrice:       101.5,
		TriggerTime:        t0,
		Level:              101,
	}
	replayed := *m

	if d := CompareMatches(m, &replayed); len(d) != 0 {
		t.Errorf("Expected 0 divergences, got %d: %v", len(d), d)
	}
}

func TestCompareMatches_Divergences(t *testing.T) {
	stored := &domain.PatternMatch{
		ID:           "a1",
		Kind:         domain.PatternDoubleTopBuy,
		Direction:    domain.SignalBuy,
		TriggerPrice: 101.5,
		TriggerTime:  t0,
		Level:        101,
	}
	replayed := &domain.PatternMatch{
		ID:           "a1",
		Kind:         domain.PatternTripleTopBuy,
		Direction:    domain.SignalBuy,
		TriggerPrice: 101.5 + 1e-9, // within tolerance
		TriggerTime:  t0 + domain.MinuteMs,
		Level:        101,
	}

	d := CompareMatches(stored, replayed)
	if len(d) != 2 {
		t.Fatalf("Expected 2 divergences, got %d: %v", len(d), d)
	}
	if d[0].Field != "Kind" || d[1].Field != "TriggerTime" {
		t.Errorf("unexpected divergent fields: %s, %s", d[0].Field, d[1].Field)
	}
}

func TestCompareHorizons(t *testing.T) {
	stored := []domain.HorizonResult{
		{Label: "5m", Price: ptrFloat64(1), ReturnPct: ptrFloat64(0.5)},
		{Label: "15m"},
		{Label: "30m", Price: ptrFloat64(2), ReturnPct: ptrFloat64(1)},
	}
	replayed := []domain.HorizonResult{
		{Label: "5m", Price: ptrFloat64(1), ReturnPct: ptrFloat64(0.5)},
		{Label: "15m", Price: ptrFloat64(1.5), ReturnPct: ptrFloat64(0.7)},
	}

	d := CompareHorizons(stored, replayed)
	fields := make([]string, len(d))
	for i := range d {
		fields[i] = d[i].Field
	}
	want := []string{"Horizon[15m].Price", "Horizon[15m].ReturnPct", "Horizon[30m]"}
	if len(fields) != len(want) {
		t.Fatalf("expected %v, got %v", want, fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("divergence %d: expected %s, got %s", i, want[i], fields[i])
		}
	}
}

func TestReplayVerifier_VerifyRun_AllMatch(t *testing.T) {
	candles := seedCandles(t, rising("aaa", 150), rising("bbb", 150))
	factory := stubFactory(t0+5*domain.MinuteMs, t0+10*domain.MinuteMs)
	results, run := runAndStore(t, candles, factory, t0, t0+20*domain.MinuteMs)
	if len(run.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(run.Results))
	}

	v := NewReplayVerifier(ReplayVerifierOptions{
		CandleStore: candles,
		ResultStore: results,
		Factory:     factory,
		From:        t0,
	})
	report, err := v.VerifyRun(context.Background(), run.Summary.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}
	if report.TotalResults != 4 || report.MatchedResults != 4 || report.DivergentResults != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	for _, r := range report.Results {
		if !r.Match {
			t.Errorf("result %s diverged: %v", r.ResultID, r.Divergences)
		}
	}
}

func TestReplayVerifier_TamperedResult(t *testing.T) {
	candles := seedCandles(t, rising("aaa", 150))
	factory := stubFactory(t0 + 5*domain.MinuteMs)
	results, run := runAndStore(t, candles, factory, t0, t0+20*domain.MinuteMs)

	v := NewReplayVerifier(ReplayVerifierOptions{
		CandleStore: candles,
		ResultStore: results,
		Factory:     factory,
		From:        t0,
	})

	r := run.Results[0]
	alert := *r.Alert
	alert.TriggerPrice += 1
	r.Alert = &alert
	r.Horizons[2].Price = ptrFloat64(*r.Horizons[2].Price + 1)

	got, err := v.VerifyResult(context.Background(), r)
	if err != nil {
		t.Fatalf("VerifyResult failed: %v", err)
	}
	if got.Match {
		t.Fatal("expected divergence")
	}
	fields := map[string]bool{}
	for _, d := range got.Divergences {
		fields[d.Field] = true
	}
	if !fields["TriggerPrice"] || !fields["Horizon[30m].Price"] || len(fields) != 2 {
		t.Errorf("unexpected divergences: %v", got.Divergences)
	}
}

func TestReplayVerifier_UnreachedHorizon(t *testing.T) {
	// data ends at +63m; the 1h target of a +5m trigger is +65m
	candles := seedCandles(t, rising("aaa", 63))
	factory := stubFactory(t0 + 5*domain.MinuteMs)
	results, run := runAndStore(t, candles, factory, t0, t0+20*domain.MinuteMs)

	r := run.Results[0]
	if r.Horizon("1h").Price != nil {
		t.Fatalf("expected nil 1h price, got %v", *r.Horizon("1h").Price)
	}

	v := NewReplayVerifier(ReplayVerifierOptions{
		CandleStore: candles,
		ResultStore: results,
		Factory:     factory,
		From:        t0,
	})
	report, err := v.VerifyRun(context.Background(), run.Summary.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}
	if report.DivergentResults != 0 {
		t.Fatalf("unexpected divergence: %+v", report.Results)
	}

	// a price filled from the last candle before the target is a divergence
	tampered := *r
	tampered.Horizons = append([]domain.HorizonResult(nil), r.Horizons...)
	tampered.Horizons[3].Price = ptrFloat64(100.63)
	got, err := v.VerifyResult(context.Background(), &tampered)
	if err != nil {
		t.Fatalf("VerifyResult failed: %v", err)
	}
	found := false
	for _, d := range got.Divergences {
		if d.Field == "Horizon[1h].Price" {
			found = true
		}
	}
	if got.Match || !found {
		t.Errorf("expected 1h price divergence, got %v", got.Divergences)
	}
}

func TestReplayVerifier_AlertNotReproduced(t *testing.T) {
	candles := seedCandles(t, rising("aaa", 150))
	results, run := runAndStore(t, candles, stubFactory(t0+5*domain.MinuteMs), t0, t0+20*domain.MinuteMs)

	// a trigger that never fires cannot reproduce the stored alert
	v := NewReplayVerifier(ReplayVerifierOptions{
		CandleStore: candles,
		ResultStore: results,
		Factory:     stubFactory(),
		From:        t0,
	})
	got, err := v.VerifyResult(context.Background(), run.Results[0])
	if err != nil {
		t.Fatalf("VerifyResult failed: %v", err)
	}
	if got.Match || len(got.Divergences) != 1 || got.Divergences[0].Field != "Alert" {
		t.Errorf("expected a missing alert divergence, got %+v", got)
	}
}

func TestReplayVerifier_PatternTrigger(t *testing.T) {
	series := pnf.PathCandles("inst", t0, 10, 20, 14, 20, 14, 20, 14, 21)
	for i := 0; i < 130; i++ {
		last := series[len(series)-1]
		series = append(series, &domain.Candle{
			InstrumentID: "inst",
			Timestamp:    last.Timestamp + domain.MinuteMs,
			Open:         21,
			High:         21.4,
			Low:          20.8,
			Close:        21,
		})
	}
	candles := seedCandles(t, series)

	cfg := tracker.DefaultConfig()
	cfg.Chart = pnf.Config{BoxSizePct: 0.1, ReversalBoxes: 3}
	factory := backtest.PatternTriggerFactory(cfg)
	end := series[len(series)-1].Timestamp
	results, run := runAndStore(t, candles, factory, t0, end)
	if len(run.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(run.Results))
	}

	v := NewReplayVerifier(ReplayVerifierOptions{
		CandleStore: candles,
		ResultStore: results,
		Factory:     factory,
		From:        t0,
	})
	report, err := v.VerifyRun(context.Background(), run.Summary.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}
	if report.MatchedResults != 1 {
		t.Errorf("expected the result to verify, got %+v", report.Results)
	}

	// a replay that starts elsewhere builds a different chart
	shifted := NewReplayVerifier(ReplayVerifierOptions{
		CandleStore: candles,
		ResultStore: results,
		Factory:     factory,
		From:        t0 + 2*domain.MinuteMs,
	})
	got, err := shifted.VerifyResult(context.Background(), run.Results[0])
	if err != nil {
		t.Fatalf("VerifyResult failed: %v", err)
	}
	if got.Match {
		t.Error("expected divergence for a replay with a different start")
	}
}

func TestReplayVerifier_Errors(t *testing.T) {
	ctx := context.Background()
	candles := seedCandles(t, rising("aaa", 150))
	results, run := runAndStore(t, candles, stubFactory(t0+5*domain.MinuteMs), t0, t0+20*domain.MinuteMs)

	failing := func(string) (backtest.Trigger, error) {
		return nil, errors.New("boom")
	}
	v := NewReplayVerifier(ReplayVerifierOptions{
		CandleStore: candles,
		ResultStore: results,
		Factory:     failing,
		From:        t0,
	})

	if _, err := v.VerifyResult(ctx, &domain.BacktestResult{ID: "x"}); !errors.Is(err, ErrNoAlert) {
		t.Errorf("expected ErrNoAlert, got %v", err)
	}
	if _, err := v.VerifyRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}

	report, err := v.VerifyRun(ctx, run.Summary.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}
	if report.DivergentResults != 1 || report.Results[0].Divergences[0].Field != "Error" {
		t.Errorf("expected the trigger error to be recorded, got %+v", report)
	}
}

func TestFloatEquals(t *testing.T) {
	tests := []struct {
		a, b     float64
		expected bool
	}{
		{1.0, 1.0, true},
		{1.0, 1.0 + 1e-8, true},
		{1.0, 1.0 + 1e-6, false},
		{0.0, 0.0, true},
		{-1.0, -1.0 + 1e-8, true},
	}

	for _, tt := range tests {
		result := floatEquals(tt.a, tt.b)
		if result != tt.expected {
			t.Errorf("floatEquals(%v, %v) = %v, expected %v", tt.a, tt.b, result, tt.expected)
		}
	}
}
