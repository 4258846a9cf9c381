package domain

// PatternAggregate summarizes the backtest results of one pattern kind in a run.
// Corresponds to pattern_aggregates table in PostgreSQL and ClickHouse.
type PatternAggregate struct {
	RunID     string      `json:"run_id"`
	Trigger   string      `json:"trigger"`
	Kind      PatternKind `json:"kind"`
	Direction Signal      `json:"direction"`

	// Counts
	TotalAlerts      int     `json:"total_alerts"`
	TotalInstruments int     `json:"total_instruments"` // unique instrument_id count
	Scored           int     `json:"scored"`            // results with a success-horizon return
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	WinRate          float64 `json:"win_rate"` // wins / scored

	// Return distribution at the success horizon
	ReturnMean   float64 `json:"return_mean"`
	ReturnMedian float64 `json:"return_median"`
	ReturnP10    float64 `json:"return_p10"`
	ReturnP25    float64 `json:"return_p25"`
	ReturnP75    float64 `json:"return_p75"`
	ReturnP90    float64 `json:"return_p90"`
	ReturnMin    float64 `json:"return_min"`
	ReturnMax    float64 `json:"return_max"`
	ReturnStddev float64 `json:"return_stddev"`

	// Excursions
	MFEMean float64 `json:"mfe_mean"`
	MAEMean float64 `json:"mae_mean"`

	HitTarget1Rate float64 `json:"hit_target_1_rate"`
	HitTarget2Rate float64 `json:"hit_target_2_rate"`
	StopLossRate   float64 `json:"stop_loss_rate"`

	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
}
