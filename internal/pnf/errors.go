package pnf

import "errors"

var (
	// ErrInvalidInput is returned for malformed or unordered candle input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration is returned for a non-positive box size or reversal count.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvariantViolation is returned when a column sequence breaks
	// direction alternation or box-extent invariants.
	ErrInvariantViolation = errors.New("column invariant violation")
)
