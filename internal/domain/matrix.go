package domain

// MatrixColumnType classifies the latest column for matrix scoring.
type MatrixColumnType string

// Matrix column types.
const (
	MatrixColumnX   MatrixColumnType = "X"
	MatrixColumnO   MatrixColumnType = "O"
	MatrixColumnDTB MatrixColumnType = "DTB" // bullish pattern on the latest column
	MatrixColumnDBB MatrixColumnType = "DBB" // bearish pattern on the latest column
)

// MatrixScore is the score of one box size.
type MatrixScore struct {
	BoxSizePct  float64          `json:"box_size_pct"`
	ColumnType  MatrixColumnType `json:"column_type"`
	Score       int              `json:"score"`
	LatestPrice float64          `json:"latest_price"`
	Patterns    []PatternKind    `json:"patterns,omitempty"`
}

// MatrixResult aggregates matrix scores across box sizes for one instrument.
type MatrixResult struct {
	InstrumentID       string        `json:"instrument_id"`
	TotalScore         int           `json:"total_score"`
	Scores             []MatrixScore `json:"scores"`
	Strength           string        `json:"strength"`
	SuperAlertEligible bool          `json:"super_alert_eligible"`
	CalculatedAt       int64         `json:"calculated_at"`
}
