package replay

import (
	"fmt"
	"sort"

	"pnf-signal-lab/internal/domain"
)

// SortCandles orders candles by (timestamp ASC, instrument_id ASC).
func SortCandles(candles []*domain.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		if candles[i].Timestamp != candles[j].Timestamp {
			return candles[i].Timestamp < candles[j].Timestamp
		}
		return candles[i].InstrumentID < candles[j].InstrumentID
	})
}

// ValidateOrdering checks that candles belong to one instrument and have strictly
// increasing timestamps.
func ValidateOrdering(candles []*domain.Candle) error {
	for i, c := range candles {
		if c == nil {
			return fmt.Errorf("%w: nil candle at %d", ErrInvalidOrdering, i)
		}
		if i == 0 {
			continue
		}
		prev := candles[i-1]
		if c.InstrumentID != prev.InstrumentID {
			return fmt.Errorf("%w: instrument %q after %q at %d", ErrInvalidOrdering, c.InstrumentID, prev.InstrumentID, i)
		}
		if c.Timestamp <= prev.Timestamp {
			return fmt.Errorf("%w: timestamp %d not after %d at %d", ErrInvalidOrdering, c.Timestamp, prev.Timestamp, i)
		}
	}
	return nil
}
