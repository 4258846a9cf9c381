package lookup

import (
	"errors"
	"sort"

	"pnf-signal-lab/internal/domain"
)

// ErrNoPriceData is returned when a lookup is made on an empty series.
var ErrNoPriceData = errors.New("no price data available")

// IndexAtOrBefore returns the index of the last candle with Timestamp <= target,
// or -1 when every candle is after target. Candles must be ordered by timestamp.
func IndexAtOrBefore(candles []*domain.Candle, target int64) int {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp > target
	})
	return i - 1
}

// CloseAt returns the close at or before target.
// If no candle is at or before target, returns the first close.
// Returns ErrNoPriceData if the slice is empty.
func CloseAt(target int64, candles []*domain.Candle) (float64, error) {
	if len(candles) == 0 {
		return 0, ErrNoPriceData
	}
	i := IndexAtOrBefore(candles, target)
	if i < 0 {
		return candles[0].Close, nil
	}
	return candles[i].Close, nil
}

// CloseWithin returns the latest candle with after < Timestamp <= target that is
// not older than target-maxStaleness. A non-positive maxStaleness disables the
// staleness bound. Returns nil when no candle qualifies.
func CloseWithin(candles []*domain.Candle, after, target, maxStaleness int64) *domain.Candle {
	i := IndexAtOrBefore(candles, target)
	if i < 0 {
		return nil
	}
	c := candles[i]
	if c.Timestamp <= after {
		return nil
	}
	if maxStaleness > 0 && c.Timestamp < target-maxStaleness {
		return nil
	}
	return c
}
