package pnf

import "pnf-signal-lab/internal/domain"

// PathCandles builds one-minute candles that walk through the given closes.
// Each candle opens at the previous close and spans exactly the move to its own close,
// which makes chart shapes easy to write down in tests and demos.
func PathCandles(instrumentID string, start int64, closes ...float64) []*domain.Candle {
	out := make([]*domain.Candle, 0, len(closes))
	prev := 0.0
	for i, p := range closes {
		open := p
		if i > 0 {
			open = prev
		}
		c := &domain.Candle{
			InstrumentID: instrumentID,
			Timestamp:    start + int64(i)*domain.MinuteMs,
			Open:         open,
			High:         max(open, p),
			Low:          min(open, p),
			Close:        p,
			Volume:       1000,
		}
		out = append(out, c)
		prev = p
	}
	return out
}
