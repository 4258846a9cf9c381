// Package orchestrator runs a backtest end to end.
// It coordinates: replay → persistence → metrics → optional verification.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pnf-signal-lab/internal/backtest"
	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/metrics"
	"pnf-signal-lab/internal/observability"
	"pnf-signal-lab/internal/storage"
	"pnf-signal-lab/internal/verification"
)

// DefaultBatchSize is the number of results persisted per InsertBulk call.
const DefaultBatchSize = 500

// Orchestrator coordinates a backtest run.
// Flow: backtest replay → store results → aggregate per pattern → verify
type Orchestrator struct {
	// Stores
	candleStore    storage.CandleStore
	resultStore    storage.BacktestResultStore
	aggregateStore storage.PatternAggregateStore

	factory   backtest.TriggerFactory
	runnerCfg backtest.RunnerConfig
	horizon   string
	batchSize int
	verify    bool
	log       zerolog.Logger
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	CandleStore    storage.CandleStore
	ResultStore    storage.BacktestResultStore
	AggregateStore storage.PatternAggregateStore

	// Trigger under test and replay settings
	Factory backtest.TriggerFactory
	Runner  backtest.RunnerConfig

	// Options
	Horizon   string // aggregate scoring horizon, defaults to metrics.DefaultHorizon
	BatchSize int    // defaults to DefaultBatchSize
	Verify    bool   // replay-verify stored results after the run
	Logger    *zerolog.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "orchestrator").Logger()
		if opts.Runner.Logger == nil {
			opts.Runner.Logger = opts.Logger
		}
	}
	return &Orchestrator{
		candleStore:    opts.CandleStore,
		resultStore:    opts.ResultStore,
		aggregateStore: opts.AggregateStore,
		factory:        opts.Factory,
		runnerCfg:      opts.Runner,
		horizon:        opts.Horizon,
		batchSize:      batch,
		verify:         opts.Verify,
		log:            log,
	}
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Summary       domain.RunSummary
	ResultsStored int
	Aggregates    []*domain.PatternAggregate
	Verification  *verification.VerificationReport // nil unless verification was requested
	Errors        []string
}

// Run executes the full pipeline over [from, to].
// Phases:
//  1. Replay every instrument through the trigger
//  2. Persist results
//  3. Aggregate metrics per pattern kind
//  4. Verify stored results (optional)
func (o *Orchestrator) Run(ctx context.Context, instruments []string, from, to int64) (*RunResult, error) {
	// Phase 1: Backtest
	runner, err := backtest.NewRunner(o.candleStore, o.factory, o.runnerCfg)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (backtest) failed: %w", err)
	}
	run, err := runner.Run(ctx, instruments, from, to)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (backtest) failed: %w", err)
	}
	result := &RunResult{Summary: run.Summary}
	log := o.log.With().Str("run_id", run.Summary.RunID).Logger()
	log.Info().
		Int("instruments", run.Summary.Instruments).
		Int("results", len(run.Results)).
		Msg("phase 1 done")

	if len(run.Results) == 0 {
		return result, nil
	}

	// Phase 2: Persist results
	stored, err := o.persist(ctx, run.Results)
	result.ResultsStored = stored
	if err != nil {
		return result, fmt.Errorf("phase 2 (persist results) failed: %w", err)
	}
	log.Info().Int("stored", stored).Msg("phase 2 done")

	// Phase 3: Metrics aggregation
	aggregator := metrics.NewAggregator(o.resultStore, o.aggregateStore, o.horizon)
	aggs, err := aggregator.ComputeAndStore(ctx, run.Summary.RunID)
	switch {
	case errors.Is(err, metrics.ErrNoResults):
	case err != nil:
		result.Errors = append(result.Errors, fmt.Sprintf("aggregate %s: %v", run.Summary.RunID, err))
	default:
		result.Aggregates = aggs
	}
	result.Errors = append(result.Errors, aggregator.GetMissingAlertErrors()...)
	log.Info().Int("aggregates", len(result.Aggregates)).Msg("phase 3 done")

	// Phase 4: Verification
	if o.verify {
		v := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
			CandleStore:  o.candleStore,
			ResultStore:  o.resultStore,
			Factory:      o.factory,
			From:         from,
			MaxStaleness: o.staleness(),
		})
		report, err := v.VerifyRun(ctx, run.Summary.RunID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("verify %s: %v", run.Summary.RunID, err))
		} else {
			result.Verification = report
			log.Info().
				Int("matched", report.MatchedResults).
				Int("divergent", report.DivergentResults).
				Msg("phase 4 done")
		}
	}

	return result, nil
}

// persist stores results in batches. Returns how many were stored before any failure.
func (o *Orchestrator) persist(ctx context.Context, results []*domain.BacktestResult) (int, error) {
	stored := 0
	for start := 0; start < len(results); start += o.batchSize {
		end := start + o.batchSize
		if end > len(results) {
			end = len(results)
		}
		began := time.Now()
		err := o.resultStore.InsertBulk(ctx, results[start:end])
		observability.RecordDBQuery("results", "insert_bulk", time.Since(began).Seconds(), err)
		if err != nil {
			return stored, err
		}
		stored += end - start
	}
	return stored, nil
}

func (o *Orchestrator) staleness() time.Duration {
	if len(o.runnerCfg.Engine.Horizons) == 0 {
		return backtest.DefaultEngineConfig().MaxStaleness
	}
	return o.runnerCfg.Engine.MaxStaleness
}
