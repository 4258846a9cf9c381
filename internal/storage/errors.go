package storage

import "errors"

// Sentinels shared by every backend. Backends wrap them with detail, so
// callers compare with errors.Is.
var (
	// ErrNotFound: no candle, alert or result matches the lookup.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey: the row already exists. Candles, alerts, results and
	// aggregates are written once and never updated.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput: nil record, empty key or inverted time range.
	ErrInvalidInput = errors.New("invalid input")
)
