// Package verification checks stored backtest results against a fresh replay.
// A result verifies when the trigger, fed only candles up to the trigger time,
// emits the same alert and the horizon prices re-derive from stored candles.
package verification

import (
	"context"
	"math"

	"pnf-signal-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single backtest result.
type VerificationResult struct {
	ResultID     string            // verified result ID
	AlertID      string            // stored alert ID
	InstrumentID string
	Match        bool              // true if all fields match
	Divergences  []FieldDivergence // list of divergent fields
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	RunID            string
	TotalResults     int                  // total results verified
	MatchedResults   int                  // results that matched exactly
	DivergentResults int                  // results with divergences or errors
	Results          []VerificationResult // individual results
}

// Verifier re-derives stored backtest results.
type Verifier interface {
	// VerifyResult replays the trigger for one stored result and compares
	// the alert and horizon samples.
	VerifyResult(ctx context.Context, result *domain.BacktestResult) (*VerificationResult, error)

	// VerifyRun verifies every stored result of a run.
	VerifyRun(ctx context.Context, runID string) (*VerificationReport, error)
}

// CompareMatches compares a stored alert with its replayed counterpart.
func CompareMatches(stored, replayed *domain.PatternMatch) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.ID != replayed.ID {
		divergences = append(divergences, FieldDivergence{
			Field:    "ID",
			Expected: stored.ID,
			Actual:   replayed.ID,
		})
	}

	if stored.Kind != replayed.Kind {
		divergences = append(divergences, FieldDivergence{
			Field:    "Kind",
			Expected: stored.Kind,
			Actual:   replayed.Kind,
		})
	}

	if stored.Direction != replayed.Direction {
		divergences = append(divergences, FieldDivergence{
			Field:    "Direction",
			Expected: stored.Direction,
			Actual:   replayed.Direction,
		})
	}

	if stored.TriggerTime != replayed.TriggerTime {
		divergences = append(divergences, FieldDivergence{
			Field:    "TriggerTime",
			Expected: stored.TriggerTime,
			Actual:   replayed.TriggerTime,
		})
	}

	if !floatEquals(stored.TriggerPrice, replayed.TriggerPrice) {
		divergences = append(divergences, FieldDivergence{
			Field:    "TriggerPrice",
			Expected: stored.TriggerPrice,
			Actual:   replayed.TriggerPrice,
		})
	}

	if !floatEquals(stored.Level, replayed.Level) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Level",
			Expected: stored.Level,
			Actual:   replayed.Level,
		})
	}

	if stored.TriggerColumnIndex != replayed.TriggerColumnIndex {
		divergences = append(divergences, FieldDivergence{
			Field:    "TriggerColumnIndex",
			Expected: stored.TriggerColumnIndex,
			Actual:   replayed.TriggerColumnIndex,
		})
	}

	return divergences
}

// CompareHorizons compares stored horizon samples with re-derived ones, matched by label.
func CompareHorizons(stored, replayed []domain.HorizonResult) []FieldDivergence {
	var divergences []FieldDivergence

	byLabel := make(map[string]domain.HorizonResult, len(replayed))
	for _, h := range replayed {
		byLabel[h.Label] = h
	}

	for _, s := range stored {
		r, ok := byLabel[s.Label]
		if !ok {
			divergences = append(divergences, FieldDivergence{
				Field:    "Horizon[" + s.Label + "]",
				Expected: s.Label,
				Actual:   nil,
			})
			continue
		}
		if !floatPtrEquals(s.Price, r.Price) {
			divergences = append(divergences, FieldDivergence{
				Field:    "Horizon[" + s.Label + "].Price",
				Expected: s.Price,
				Actual:   r.Price,
			})
		}
		if !floatPtrEquals(s.ReturnPct, r.ReturnPct) {
			divergences = append(divergences, FieldDivergence{
				Field:    "Horizon[" + s.Label + "].ReturnPct",
				Expected: s.ReturnPct,
				Actual:   r.ReturnPct,
			})
		}
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}
