package domain

import "time"

// Horizon is a forward offset at which post-trigger price is sampled.
type Horizon struct {
	Label    string        `json:"label"` // e.g. "30m"
	Duration time.Duration `json:"duration"`
}

// DefaultHorizons are the standard sampling offsets: 5m, 15m, 30m, 1h, 2h.
var DefaultHorizons = []Horizon{
	{Label: "5m", Duration: 5 * time.Minute},
	{Label: "15m", Duration: 15 * time.Minute},
	{Label: "30m", Duration: 30 * time.Minute},
	{Label: "1h", Duration: time.Hour},
	{Label: "2h", Duration: 2 * time.Hour},
}

// HorizonResult is the sampled outcome at one horizon.
// Price and ReturnPct stay nil when the horizon was not reached.
type HorizonResult struct {
	Label     string   `json:"label"`
	OffsetMs  int64    `json:"offset_ms"`
	Price     *float64 `json:"price"`
	ReturnPct *float64 `json:"return_pct"` // profit-direction percent
}

// BacktestResult scores one trigger against the candles that followed it.
// Corresponds to backtest_results table in PostgreSQL and ClickHouse.
type BacktestResult struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id"`
	Trigger      string        `json:"trigger"` // trigger name
	Alert        *PatternMatch `json:"alert"`
	InstrumentID string        `json:"instrument_id"`
	TriggerPrice float64       `json:"trigger_price"`
	TriggerTime  int64         `json:"trigger_time"` // Unix ms

	Horizons []HorizonResult `json:"horizons"`

	// Excursions in profit direction over the tracked window.
	MaxFavorableExcursionPct *float64 `json:"max_favorable_excursion_pct"`
	MaxAdverseExcursionPct   *float64 `json:"max_adverse_excursion_pct"`
	MaxFavorableTime         *int64   `json:"max_favorable_time"`
	MaxAdverseTime           *int64   `json:"max_adverse_time"`

	HitTarget1Pct bool  `json:"hit_target_1pct"`
	HitTarget2Pct bool  `json:"hit_target_2pct"`
	HitStopLoss   bool  `json:"hit_stop_loss"`
	WasSuccessful *bool `json:"was_successful"` // nil when the success horizon was not reached
}

// Horizon returns the result for the given label, or nil.
func (r *BacktestResult) Horizon(label string) *HorizonResult {
	for i := range r.Horizons {
		if r.Horizons[i].Label == label {
			return &r.Horizons[i]
		}
	}
	return nil
}

// ReturnAt returns the profit-direction return at the given horizon, or nil.
func (r *BacktestResult) ReturnAt(label string) *float64 {
	h := r.Horizon(label)
	if h == nil {
		return nil
	}
	return h.ReturnPct
}

// RunSummary describes a multi-instrument backtest run.
type RunSummary struct {
	RunID       string   `json:"run_id"`
	Trigger     string   `json:"trigger"`
	From        int64    `json:"from"`
	To          int64    `json:"to"`
	Instruments int      `json:"instruments"`
	Processed   int      `json:"processed"`
	Skipped     int      `json:"skipped"` // no candles in range
	Errored     int      `json:"errored"`
	Triggers    int      `json:"triggers"`
	Errors      []string `json:"errors,omitempty"`
}
