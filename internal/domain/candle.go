package domain

// Candle represents one OHLCV bar for an instrument.
// Corresponds to candles table in PostgreSQL and ClickHouse.
type Candle struct {
	InstrumentID string  `json:"instrument_id"` // instrument key, e.g. "NSE_EQ|INE002A01018"
	Timestamp    int64   `json:"timestamp"`     // bar open time, Unix milliseconds
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
}

// MinuteMs is one minute in milliseconds.
const MinuteMs int64 = 60_000
