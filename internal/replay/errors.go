package replay

import "errors"

// ErrInvalidOrdering is returned when a candle series is not strictly increasing in time
// or mixes instruments.
var ErrInvalidOrdering = errors.New("candles are not in strict time order")
