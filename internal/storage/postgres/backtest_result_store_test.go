package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
	"pnf-signal-lab/internal/storage/postgres"
)

func testResult(id string, ts int64) *domain.BacktestResult {
	return &domain.BacktestResult{
		ID:           id,
		RunID:        "run-1",
		Trigger:      "pnf",
		Alert:        testAlert("alert-"+id, ts),
		InstrumentID: "A",
		TriggerPrice: 21,
		TriggerTime:  ts,
		Horizons: []domain.HorizonResult{
			{Label: "5m", OffsetMs: 300_000, Price: ptr(21.5), ReturnPct: ptr(2.38)},
			{Label: "2h", OffsetMs: 7_200_000},
		},
		MaxFavorableExcursionPct: ptr(3.1),
		MaxAdverseExcursionPct:   ptr(-0.4),
		MaxFavorableTime:         ptr(ts + 600_000),
		MaxAdverseTime:           ptr(ts + 60_000),
		HitTarget1Pct:            true,
		HitTarget2Pct:            true,
		WasSuccessful:            ptr(true),
	}
}

func TestBacktestResultStore_InsertBulkAndGetByRunID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewBacktestResultStore(pool)

	partial := testResult("r2", 2000)
	partial.WasSuccessful = nil
	partial.MaxAdverseExcursionPct = nil
	partial.MaxAdverseTime = nil

	require.NoError(t, store.InsertBulk(ctx, []*domain.BacktestResult{partial, testResult("r1", 1000)}))

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, testResult("r1", 1000), got[0])
	assert.Nil(t, got[1].WasSuccessful)
	assert.Nil(t, got[1].MaxAdverseExcursionPct)
	assert.Nil(t, got[1].Horizon("2h").Price)

	err = store.InsertBulk(ctx, []*domain.BacktestResult{testResult("r3", 3000), testResult("r1", 1000)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err = store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 2, "failed batch must not leave rows")
}

func TestPatternAggregateStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewPatternAggregateStore(pool)

	agg := &domain.PatternAggregate{
		RunID:       "run-1",
		Trigger:     "pnf",
		Kind:        domain.PatternDoubleTopBuy,
		Direction:   domain.SignalBuy,
		TotalAlerts: 4,
		Scored:      3,
		Wins:        2,
		Losses:      1,
		WinRate:     2.0 / 3.0,
		ReturnMean:  0.8,
	}
	require.NoError(t, store.Insert(ctx, agg))
	assert.ErrorIs(t, store.Insert(ctx, agg), storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, agg, got[0])
}
