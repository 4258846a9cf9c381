package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pnf-signal-lab/internal/backtest"
	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/lookup"
	"pnf-signal-lab/internal/storage"
)

var (
	// ErrRunNotFound is returned when a run has no stored results.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoAlert is returned when a result carries no alert to replay.
	ErrNoAlert = errors.New("result has no alert")
)

// ReplayVerifier implements Verifier by re-running a trigger over stored candles.
type ReplayVerifier struct {
	candleStore  storage.CandleStore
	resultStore  storage.BacktestResultStore
	factory      backtest.TriggerFactory
	from         int64
	maxStaleness int64
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	CandleStore storage.CandleStore
	ResultStore storage.BacktestResultStore
	Factory     backtest.TriggerFactory

	// From is the start of the verified run. Chart state depends on the first
	// candle, so replay must begin where the run began.
	From int64

	// MaxStaleness bounds horizon samples as in the engine; zero disables the bound.
	MaxStaleness time.Duration
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		candleStore:  opts.CandleStore,
		resultStore:  opts.ResultStore,
		factory:      opts.Factory,
		from:         opts.From,
		maxStaleness: opts.MaxStaleness.Milliseconds(),
	}
}

// VerifyResult replays the trigger over candles truncated at the trigger time,
// then re-samples every stored horizon.
func (v *ReplayVerifier) VerifyResult(ctx context.Context, result *domain.BacktestResult) (*VerificationResult, error) {
	if result == nil || result.Alert == nil {
		return nil, ErrNoAlert
	}

	var maxOffset int64
	for _, h := range result.Horizons {
		if h.OffsetMs > maxOffset {
			maxOffset = h.OffsetMs
		}
	}
	candles, err := v.candleStore.GetByTimeRange(ctx, result.InstrumentID, v.from, result.TriggerTime+maxOffset)
	if err != nil {
		return nil, fmt.Errorf("load candles for %s: %w", result.InstrumentID, err)
	}

	out := &VerificationResult{
		ResultID:     result.ID,
		AlertID:      result.Alert.ID,
		InstrumentID: result.InstrumentID,
	}

	// 1. Replay the trigger without any candle after the trigger time
	n := lookup.IndexAtOrBefore(candles, result.TriggerTime) + 1
	replayed, err := v.replayAlert(ctx, result, candles[:n:n])
	if err != nil {
		return nil, err
	}
	if replayed == nil {
		out.Divergences = append(out.Divergences, FieldDivergence{
			Field:    "Alert",
			Expected: result.Alert.ID,
			Actual:   nil,
		})
	} else {
		out.Divergences = append(out.Divergences, CompareMatches(result.Alert, replayed)...)
	}

	// 2. Re-sample horizons from the full series
	out.Divergences = append(out.Divergences, CompareHorizons(result.Horizons, v.resample(result, candles))...)

	out.Match = len(out.Divergences) == 0
	return out, nil
}

// VerifyRun verifies all stored results of a run.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationReport, error) {
	results, err := v.resultStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrRunNotFound
	}

	report := &VerificationReport{
		RunID:        runID,
		TotalResults: len(results),
		Results:      make([]VerificationResult, 0, len(results)),
	}

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vr, err := v.VerifyResult(ctx, r)
		if err != nil {
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				ResultID:     r.ID,
				InstrumentID: r.InstrumentID,
				Match:        false,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentResults++
			continue
		}

		report.Results = append(report.Results, *vr)
		if vr.Match {
			report.MatchedResults++
		} else {
			report.DivergentResults++
		}
	}

	return report, nil
}

// replayAlert feeds a fresh trigger one candle at a time and returns the match
// with the stored alert ID. Without an exact ID match, a match with the same
// kind and trigger time is returned so its fields can be compared.
func (v *ReplayVerifier) replayAlert(ctx context.Context, result *domain.BacktestResult, candles []*domain.Candle) (*domain.PatternMatch, error) {
	trigger, err := v.factory(result.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("create trigger: %w", err)
	}

	var near *domain.PatternMatch
	for n := 1; n <= len(candles); n++ {
		matches, err := trigger.Evaluate(ctx, candles[:n:n])
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", trigger.Name(), err)
		}
		for _, m := range matches {
			if m.ID == result.Alert.ID {
				return m, nil
			}
			if near == nil && m.Kind == result.Alert.Kind && m.TriggerTime == result.TriggerTime {
				near = m
			}
		}
	}
	return near, nil
}

// resample recomputes each horizon sample the way the engine does.
func (v *ReplayVerifier) resample(result *domain.BacktestResult, candles []*domain.Candle) []domain.HorizonResult {
	out := make([]domain.HorizonResult, len(result.Horizons))
	var last int64
	if len(candles) > 0 {
		last = candles[len(candles)-1].Timestamp
	}
	for i, h := range result.Horizons {
		out[i] = domain.HorizonResult{Label: h.Label, OffsetMs: h.OffsetMs}
		if len(candles) == 0 || !backtest.HorizonReached(result.TriggerTime, h.OffsetMs, last) {
			continue
		}
		c := lookup.CloseWithin(candles, result.TriggerTime, result.TriggerTime+h.OffsetMs, v.maxStaleness)
		if c == nil {
			continue
		}
		price := c.Close
		ret := backtest.DirectionalReturn(result.Alert.Direction, result.TriggerPrice, price)
		out[i].Price = &price
		out[i].ReturnPct = &ret
	}
	return out
}

var _ Verifier = (*ReplayVerifier)(nil)
