package memory

import (
	"context"
	"errors"
	"testing"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

func result(id, runID string, ts int64) *domain.BacktestResult {
	ret := 1.5
	return &domain.BacktestResult{
		ID:           id,
		RunID:        runID,
		Trigger:      "pnf",
		Alert:        match("alert-"+id, "a", ts),
		InstrumentID: "a",
		TriggerPrice: 101,
		TriggerTime:  ts,
		Horizons:     []domain.HorizonResult{{Label: "5m", OffsetMs: 300_000, ReturnPct: &ret}},
	}
}

func TestBacktestResultStore_InsertBulkAndGetByRunID(t *testing.T) {
	store := NewBacktestResultStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.BacktestResult{
		result("r2", "run-1", 2000),
		result("r1", "run-1", 1000),
		result("r3", "run-2", 1000),
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r1" || got[1].ID != "r2" {
		t.Fatalf("Unexpected results: %+v", got)
	}

	// copies do not leak
	got[0].Horizons[0].Label = "x"
	again, _ := store.GetByRunID(ctx, "run-1")
	if again[0].Horizons[0].Label != "5m" {
		t.Error("Store returned shared horizons")
	}
}

func TestBacktestResultStore_DuplicateKey(t *testing.T) {
	store := NewBacktestResultStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.BacktestResult{result("r1", "run-1", 1000)}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	err := store.InsertBulk(ctx, []*domain.BacktestResult{result("r2", "run-1", 1000), result("r1", "run-1", 1000)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByRunID(ctx, "run-1")
	if len(got) != 1 {
		t.Errorf("Expected failed batch to insert nothing, got %d", len(got))
	}
}

func TestPatternAggregateStore_InsertAndGet(t *testing.T) {
	store := NewPatternAggregateStore()
	ctx := context.Background()

	b := &domain.PatternAggregate{RunID: "run-1", Kind: domain.PatternTripleTopBuy, TotalAlerts: 3}
	a := &domain.PatternAggregate{RunID: "run-1", Kind: domain.PatternDoubleTopBuy, TotalAlerts: 5}
	for _, agg := range []*domain.PatternAggregate{b, a} {
		if err := store.Insert(ctx, agg); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := store.Insert(ctx, a); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 || got[0].Kind != domain.PatternDoubleTopBuy {
		t.Errorf("Unexpected aggregates: %+v", got)
	}
}
