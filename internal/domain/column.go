package domain

// Direction is the direction of a Point & Figure column.
type Direction string

// Column directions.
const (
	DirectionX Direction = "X" // rising column
	DirectionO Direction = "O" // falling column
)

// Opposite returns the other column direction.
func (d Direction) Opposite() Direction {
	if d == DirectionX {
		return DirectionO
	}
	return DirectionX
}

// Column is one run of same-direction boxes between two reversals.
// Only the last column of a chart may be open; all others are frozen.
type Column struct {
	Index       int       `json:"index"`        // 0-based, monotonic
	Direction   Direction `json:"direction"`    // X or O
	EntryBox    int       `json:"entry_box"`    // first box of the column
	ExtremeBox  int       `json:"extreme_box"`  // highest box for X, lowest for O
	BoxCount    int       `json:"box_count"`    // |ExtremeBox - EntryBox| + 1
	TopPrice    float64   `json:"top_price"`    // price of the highest box
	BottomPrice float64   `json:"bottom_price"` // price of the lowest box
	StartTime   int64     `json:"start_time"`   // candle that opened the column (ms)
	EndTime     int64     `json:"end_time"`     // last candle that mutated the column (ms)
	Closed      bool      `json:"closed"`
}

// TopBox returns the highest box level reached by the column.
func (c *Column) TopBox() int {
	if c.Direction == DirectionX {
		return c.ExtremeBox
	}
	return c.EntryBox
}

// BottomBox returns the lowest box level reached by the column.
func (c *Column) BottomBox() int {
	if c.Direction == DirectionX {
		return c.EntryBox
	}
	return c.ExtremeBox
}

// Range returns the price distance covered by the column.
func (c *Column) Range() float64 {
	return c.TopPrice - c.BottomPrice
}
