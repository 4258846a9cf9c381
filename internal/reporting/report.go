// Package reporting renders backtest runs as Markdown and CSV.
package reporting

import "time"

// Report represents one backtest run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	Trigger     string

	Summary     RunSummary
	DataQuality DataQualitySection

	// Pattern metrics (sorted by kind)
	PatternMetrics []PatternMetricRow

	// Mean return per kind and horizon (sorted by kind, horizon offset)
	HorizonReturns []HorizonReturnRow

	// BUY vs SELL
	DirectionComparison []DirectionComparisonRow

	// Replay references for the best and worst scored results
	ReplayReferences []ReplayReferenceRow
}

// RunSummary describes the run scope.
type RunSummary struct {
	Instruments    int
	Processed      int
	Skipped        int
	Errored        int
	TotalResults   int
	DateRangeStart int64 // Unix ms, first trigger
	DateRangeEnd   int64 // Unix ms, last trigger
}

// DataQualitySection lists run errors and integrity problems.
type DataQualitySection struct {
	RunErrors       []string
	IntegrityErrors []string
}

// PatternMetricRow represents one row in the pattern metrics table.
type PatternMetricRow struct {
	Kind                 string
	Direction            string
	TotalAlerts          int
	TotalInstruments     int
	Scored               int
	WinRate              float64
	ReturnMean           float64
	ReturnMedian         float64
	ReturnP10            float64
	ReturnP90            float64
	MFEMean              float64
	MAEMean              float64
	HitTarget1Rate       float64
	StopLossRate         float64
	MaxConsecutiveLosses int
}

// HorizonReturnRow is the mean return of a kind at one horizon.
type HorizonReturnRow struct {
	Kind       string
	Horizon    string
	OffsetMs   int64
	Samples    int
	MeanReturn float64
	Coverage   float64 // samples / alerts
}

// DirectionComparisonRow compares BUY and SELL results.
type DirectionComparisonRow struct {
	Direction   string
	TotalAlerts int
	Scored      int
	WinRate     float64
	ReturnMean  float64
}

// ReplayReferenceRow identifies a result to replay.
type ReplayReferenceRow struct {
	ResultID     string
	InstrumentID string
	Kind         string
	TriggerTime  int64
	Return       float64
}
