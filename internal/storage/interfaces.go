package storage

import (
	"context"

	"pnf-signal-lab/internal/domain"
)

// CandleStore provides access to candles storage.
type CandleStore interface {
	// InsertBulk adds multiple candles atomically. Fails entire batch on duplicate (instrument_id, timestamp).
	InsertBulk(ctx context.Context, candles []*domain.Candle) error

	// GetByTimeRange retrieves candles for an instrument within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]*domain.Candle, error)

	// ListInstruments returns all instrument IDs with at least one candle, sorted ASC.
	ListInstruments(ctx context.Context) ([]string, error)
}

// AlertStore provides access to pattern_alerts storage.
type AlertStore interface {
	// Insert adds a new alert. Returns ErrDuplicateKey if the alert ID exists.
	Insert(ctx context.Context, m *domain.PatternMatch) error

	// GetByInstrument retrieves all alerts for an instrument, ordered by trigger_time ASC.
	GetByInstrument(ctx context.Context, instrumentID string) ([]*domain.PatternMatch, error)

	// GetByTimeRange retrieves alerts of all instruments triggered within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PatternMatch, error)
}

// AlertedStore is the persistent one-shot set of (instrument, kind, level) keys.
type AlertedStore interface {
	// MarkIfAbsent records the key and reports whether it was newly added.
	// Concurrent callers for the same key see exactly one true.
	MarkIfAbsent(ctx context.Context, key domain.AlertKey) (bool, error)

	// Contains reports whether the key has been recorded.
	Contains(ctx context.Context, key domain.AlertKey) (bool, error)
}

// BacktestResultStore provides access to backtest_results storage.
type BacktestResultStore interface {
	// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate ID.
	InsertBulk(ctx context.Context, results []*domain.BacktestResult) error

	// GetByRunID retrieves all results of a run, ordered by trigger_time ASC, id ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.BacktestResult, error)
}

// PatternAggregateStore provides access to pattern_aggregates storage.
type PatternAggregateStore interface {
	// Insert adds a new aggregate. Returns ErrDuplicateKey if (run_id, kind) exists.
	Insert(ctx context.Context, a *domain.PatternAggregate) error

	// GetByRunID retrieves all aggregates of a run, ordered by kind ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.PatternAggregate, error)
}
