// Package metrics aggregates backtest results into per-pattern statistics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// ErrNoResults is returned when a run has no results to aggregate.
var ErrNoResults = errors.New("no backtest results available for aggregation")

// DefaultHorizon is the horizon whose return decides wins and losses.
const DefaultHorizon = "30m"

// Aggregator computes pattern aggregates from backtest results.
type Aggregator struct {
	resultStore    storage.BacktestResultStore
	aggregateStore storage.PatternAggregateStore
	horizon        string

	// MissingAlerts counts results without an alert payload, by result id.
	MissingAlerts map[string]int
}

// NewAggregator creates a new metrics aggregator. An empty horizon selects DefaultHorizon.
func NewAggregator(resultStore storage.BacktestResultStore, aggregateStore storage.PatternAggregateStore, horizon string) *Aggregator {
	if horizon == "" {
		horizon = DefaultHorizon
	}
	return &Aggregator{
		resultStore:    resultStore,
		aggregateStore: aggregateStore,
		horizon:        horizon,
		MissingAlerts:  make(map[string]int),
	}
}

// Horizon returns the scoring horizon label.
func (a *Aggregator) Horizon() string {
	return a.horizon
}

// ComputeAggregates loads a run's results and computes one aggregate per pattern kind,
// ordered by kind. Returns ErrNoResults if the run has none.
func (a *Aggregator) ComputeAggregates(ctx context.Context, runID string) ([]*domain.PatternAggregate, error) {
	results, err := a.resultStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return a.Compute(runID, results)
}

// Compute groups results by pattern kind and aggregates each group.
func (a *Aggregator) Compute(runID string, results []*domain.BacktestResult) ([]*domain.PatternAggregate, error) {
	type group struct {
		trigger   string
		direction domain.Signal
		results   []*domain.BacktestResult
	}
	groups := make(map[domain.PatternKind]*group)
	for _, r := range results {
		if r.Alert == nil {
			a.MissingAlerts[r.ID]++
			continue
		}
		g, ok := groups[r.Alert.Kind]
		if !ok {
			g = &group{trigger: r.Trigger, direction: r.Alert.Direction}
			groups[r.Alert.Kind] = g
		}
		g.results = append(g.results, r)
	}
	if len(groups) == 0 {
		return nil, ErrNoResults
	}

	kinds := make([]domain.PatternKind, 0, len(groups))
	for k := range groups {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	out := make([]*domain.PatternAggregate, 0, len(kinds))
	for _, k := range kinds {
		g := groups[k]
		agg := computeFromResults(g.results, a.horizon)
		agg.RunID = runID
		agg.Trigger = g.trigger
		agg.Kind = k
		agg.Direction = g.direction
		out = append(out, agg)
	}
	return out, nil
}

// GetMissingAlertErrors returns data quality errors for results without alerts,
// sorted by result id for deterministic output.
func (a *Aggregator) GetMissingAlertErrors() []string {
	if len(a.MissingAlerts) == 0 {
		return nil
	}

	keys := make([]string, 0, len(a.MissingAlerts))
	for k := range a.MissingAlerts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	errs := make([]string, len(keys))
	for i, id := range keys {
		errs[i] = fmt.Sprintf("result %s has no alert payload", id)
	}
	return errs
}

// ComputeAndStore computes and persists a run's aggregates.
// Returns storage.ErrDuplicateKey if an aggregate already exists (append-only).
func (a *Aggregator) ComputeAndStore(ctx context.Context, runID string) ([]*domain.PatternAggregate, error) {
	aggs, err := a.ComputeAggregates(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := a.Store(ctx, aggs); err != nil {
		return nil, err
	}
	return aggs, nil
}

// Store persists aggregates in order, stopping at the first error.
func (a *Aggregator) Store(ctx context.Context, aggs []*domain.PatternAggregate) error {
	for _, agg := range aggs {
		if err := a.aggregateStore.Insert(ctx, agg); err != nil {
			return fmt.Errorf("store aggregate %s/%s: %w", agg.RunID, agg.Kind, err)
		}
	}
	return nil
}
