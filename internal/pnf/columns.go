package pnf

import (
	"fmt"

	"pnf-signal-lab/internal/domain"
)

// BuildColumns feeds candles through a fresh Builder and returns the resulting columns.
// Candles must belong to one instrument and be strictly time-ordered.
func BuildColumns(candles []*domain.Candle, cfg Config) ([]domain.Column, error) {
	b, err := NewBuilder(cfg)
	if err != nil {
		return nil, err
	}
	for i, c := range candles {
		if _, err := b.Feed(c); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
	}
	return b.Columns(), nil
}

// Validate checks the structural invariants of a column sequence:
// consecutive indices, alternating directions, consistent box counts,
// and a single open column at the tail.
func Validate(columns []domain.Column) error {
	for i := range columns {
		col := &columns[i]
		if i > 0 && col.Index != columns[i-1].Index+1 {
			return fmt.Errorf("%w: column %d follows index %d", ErrInvariantViolation, col.Index, columns[i-1].Index)
		}
		if err := checkExtent(col); err != nil {
			return err
		}
		if i < len(columns)-1 && !col.Closed {
			return fmt.Errorf("%w: column %d is open but not last", ErrInvariantViolation, col.Index)
		}
	}
	if err := CheckAlternation(columns); err != nil {
		return err
	}
	if n := len(columns); n > 0 && columns[n-1].Closed {
		return fmt.Errorf("%w: last column %d is closed", ErrInvariantViolation, columns[n-1].Index)
	}
	return nil
}

// CheckAlternation verifies that adjacent columns have opposite directions.
func CheckAlternation(columns []domain.Column) error {
	for i := 1; i < len(columns); i++ {
		if columns[i].Direction == columns[i-1].Direction {
			return fmt.Errorf("%w: columns %d and %d are both %s",
				ErrInvariantViolation, columns[i-1].Index, columns[i].Index, columns[i].Direction)
		}
	}
	return nil
}

func checkExtent(col *domain.Column) error {
	switch col.Direction {
	case domain.DirectionX:
		if col.ExtremeBox < col.EntryBox {
			return fmt.Errorf("%w: X column %d extreme below entry", ErrInvariantViolation, col.Index)
		}
	case domain.DirectionO:
		if col.ExtremeBox > col.EntryBox {
			return fmt.Errorf("%w: O column %d extreme above entry", ErrInvariantViolation, col.Index)
		}
	default:
		return fmt.Errorf("%w: column %d has direction %q", ErrInvariantViolation, col.Index, col.Direction)
	}
	want := col.ExtremeBox - col.EntryBox
	if want < 0 {
		want = -want
	}
	if col.BoxCount != want+1 {
		return fmt.Errorf("%w: column %d box count %d, want %d", ErrInvariantViolation, col.Index, col.BoxCount, want+1)
	}
	return nil
}
