package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/observability"
	"pnf-signal-lab/internal/replay"
	"pnf-signal-lab/internal/storage"
)

// Instrument outcome labels.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusErrored   = "errored"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Engine  EngineConfig
	Trigger string        // summary trigger name; empty takes the name of the first trigger created
	Step    time.Duration // replay cursor step, defaults to replay.DefaultStep
	Workers int           // parallel instruments, defaults to 1
	Logger  *zerolog.Logger
}

// Run is the output of a multi-instrument backtest.
type Run struct {
	Summary domain.RunSummary
	Results []*domain.BacktestResult
}

// Runner backtests a trigger over many instruments.
type Runner struct {
	replay  *replay.Runner
	candles storage.CandleStore
	factory TriggerFactory
	cfg     RunnerConfig
	log     zerolog.Logger
}

// NewRunner creates a backtest runner. A config without horizons uses DefaultEngineConfig.
func NewRunner(candles storage.CandleStore, factory TriggerFactory, cfg RunnerConfig) (*Runner, error) {
	if candles == nil || factory == nil {
		return nil, errors.New("new backtest runner: nil candle store or trigger factory")
	}
	if len(cfg.Engine.Horizons) == 0 {
		cfg.Engine = DefaultEngineConfig()
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "backtest").Logger()
	}
	return &Runner{
		replay:  replay.NewRunner(candles, cfg.Step),
		candles: candles,
		factory: factory,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Run backtests the instruments over [from, to]. An empty list selects every
// stored instrument. Candles are loaded through to + the longest horizon so
// late triggers can still be scored, but triggers are evaluated only up to to.
//
// Per-instrument failures are recorded in the summary and do not abort the run.
// On cancellation the completed instruments are returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, instruments []string, from, to int64) (*Run, error) {
	started := time.Now()
	if from > to {
		return nil, fmt.Errorf("%w: from %d after to %d", storage.ErrInvalidInput, from, to)
	}
	if len(instruments) == 0 {
		all, err := r.candles.ListInstruments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
		instruments = all
	}

	runID := uuid.NewString()
	out := &Run{Summary: domain.RunSummary{
		RunID:       runID,
		Trigger:     r.cfg.Trigger,
		From:        from,
		To:          to,
		Instruments: len(instruments),
	}}
	log := r.log.With().Str("run_id", runID).Logger()
	log.Info().Int("instruments", len(instruments)).Int("workers", r.cfg.Workers).Msg("backtest started")

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)

	var cancelled error
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		inst := inst
		g.Go(func() error {
			results, name, status, err := r.runInstrument(ctx, runID, inst, from, to)

			mu.Lock()
			defer mu.Unlock()
			if out.Summary.Trigger == "" {
				out.Summary.Trigger = name
			}
			switch {
			case err != nil && ctx.Err() != nil:
				// partial results of an interrupted instrument are discarded
				return nil
			case err != nil:
				out.Summary.Errored++
				out.Summary.Errors = append(out.Summary.Errors, fmt.Sprintf("%s: %v", inst, err))
				log.Warn().Err(err).Str("instrument", inst).Msg("instrument failed")
			case status == StatusSkipped:
				out.Summary.Skipped++
			default:
				out.Summary.Processed++
				out.Summary.Triggers += len(results)
				out.Results = append(out.Results, results...)
			}
			observability.RecordBacktestInstrument(status)
			return nil
		})
	}
	_ = g.Wait()
	if cancelled == nil {
		cancelled = ctx.Err()
	}

	sort.Strings(out.Summary.Errors)
	sortResults(out.Results)

	elapsed := time.Since(started)
	if cancelled != nil {
		log.Warn().Err(cancelled).Int("processed", out.Summary.Processed).Msg("backtest cancelled")
		return out, cancelled
	}
	observability.RecordBacktestRun(out.Summary.Trigger, len(out.Results), elapsed.Seconds(), time.Now().Unix())
	log.Info().
		Int("processed", out.Summary.Processed).
		Int("skipped", out.Summary.Skipped).
		Int("errored", out.Summary.Errored).
		Int("results", len(out.Results)).
		Dur("elapsed", elapsed).
		Msg("backtest finished")
	return out, nil
}

// runInstrument returns the instrument's results and the name of the trigger it created.
func (r *Runner) runInstrument(ctx context.Context, runID, instrumentID string, from, to int64) ([]*domain.BacktestResult, string, string, error) {
	candles, err := r.replay.Load(ctx, instrumentID, from, to+r.cfg.Engine.MaxHorizon().Milliseconds())
	if err != nil {
		return nil, "", StatusErrored, err
	}
	if len(candles) == 0 {
		return nil, "", StatusSkipped, nil
	}

	trigger, err := r.factory(instrumentID)
	if err != nil {
		return nil, "", StatusErrored, fmt.Errorf("create trigger: %w", err)
	}
	name := trigger.Name()
	engine, err := NewEngine(runID, trigger, r.cfg.Engine, to)
	if err != nil {
		return nil, name, StatusErrored, err
	}
	if err := r.replay.Replay(ctx, candles, engine); err != nil {
		return nil, name, StatusErrored, err
	}

	results := engine.Results()
	r.log.Debug().
		Str("run_id", runID).
		Str("instrument", instrumentID).
		Int("candles", len(candles)).
		Int("results", len(results)).
		Msg("instrument done")
	return results, name, StatusProcessed, nil
}

// sortResults orders results by trigger time, instrument, then id.
func sortResults(results []*domain.BacktestResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.TriggerTime != b.TriggerTime {
			return a.TriggerTime < b.TriggerTime
		}
		if a.InstrumentID != b.InstrumentID {
			return a.InstrumentID < b.InstrumentID
		}
		return a.ID < b.ID
	})
}
