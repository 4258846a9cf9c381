package pnf

import (
	"fmt"
	"math"

	"pnf-signal-lab/internal/domain"
)

// Delta describes what a single Feed call changed.
type Delta struct {
	Closed    []domain.Column // columns frozen by this candle
	Open      *domain.Column  // current open column after this candle, nil before the first column
	Changed   bool
	NewColumn bool
	NewBox    bool // open column extended without reversing
}

// Builder turns a candle stream into P&F columns one candle at a time.
// A Builder is bound to the first instrument it sees and is not safe for concurrent use.
type Builder struct {
	cfg Config

	started      bool
	instrumentID string
	lastTs       int64
	reference    float64
	width        float64

	// set until the first column direction is known
	startBox  int
	startTime int64

	columns []domain.Column
}

// NewBuilder creates a builder for the given configuration.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyExtensionFirst
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg}, nil
}

// Config returns the builder configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// Reference returns the price the box width was derived from, 0 before the first candle.
func (b *Builder) Reference() float64 {
	return b.reference
}

// BoxWidth returns the box width in price units, 0 before the first candle.
func (b *Builder) BoxWidth() float64 {
	return b.width
}

// BoxPrice returns the price of a box level.
func (b *Builder) BoxPrice(box int) float64 {
	return float64(box) * b.width
}

// Box returns the box level of a price.
func (b *Builder) Box(price float64) int {
	return int(math.Round(price / b.width))
}

// Columns returns a copy of all columns, the open one last.
func (b *Builder) Columns() []domain.Column {
	out := make([]domain.Column, len(b.columns))
	copy(out, b.columns)
	return out
}

// Tail returns a copy of the last n columns.
func (b *Builder) Tail(n int) []domain.Column {
	if n > len(b.columns) {
		n = len(b.columns)
	}
	out := make([]domain.Column, n)
	copy(out, b.columns[len(b.columns)-n:])
	return out
}

// Len returns the number of columns.
func (b *Builder) Len() int {
	return len(b.columns)
}

// Open returns a copy of the open column, or nil before the first column.
func (b *Builder) Open() *domain.Column {
	if len(b.columns) == 0 {
		return nil
	}
	col := b.columns[len(b.columns)-1]
	return &col
}

// Feed applies one candle and returns the delta.
// On error the builder state is left unchanged.
func (b *Builder) Feed(c *domain.Candle) (Delta, error) {
	if err := b.check(c); err != nil {
		return Delta{}, err
	}

	if !b.started {
		b.started = true
		b.instrumentID = c.InstrumentID
		b.reference = c.Close
		b.width = c.Close * b.cfg.BoxSizePct
		b.startBox = b.Box(c.Close)
		b.startTime = c.Timestamp
	}
	b.lastTs = c.Timestamp

	var d Delta
	if len(b.columns) == 0 {
		b.start(c, &d)
	} else {
		b.advance(c, &d)
	}

	d.Open = b.Open()
	return d, nil
}

func (b *Builder) check(c *domain.Candle) error {
	if c == nil {
		return fmt.Errorf("%w: nil candle", ErrInvalidInput)
	}
	if !validPrice(c.Open) || !validPrice(c.High) || !validPrice(c.Low) || !validPrice(c.Close) {
		return fmt.Errorf("%w: non-positive price at %d", ErrInvalidInput, c.Timestamp)
	}
	if c.Low > c.High || c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("%w: inconsistent OHLC at %d", ErrInvalidInput, c.Timestamp)
	}
	if b.started {
		if c.InstrumentID != b.instrumentID {
			return fmt.Errorf("%w: instrument %q fed to builder of %q", ErrInvalidInput, c.InstrumentID, b.instrumentID)
		}
		if c.Timestamp <= b.lastTs {
			return fmt.Errorf("%w: timestamp %d not after %d", ErrInvalidInput, c.Timestamp, b.lastTs)
		}
	}
	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

// start opens the first column once a candle leaves the starting box.
// The larger move decides the direction; a tie goes to the candle body.
func (b *Builder) start(c *domain.Candle, d *Delta) {
	hb, lb := b.Box(c.High), b.Box(c.Low)
	up, down := hb-b.startBox, b.startBox-lb
	if up < 1 && down < 1 {
		return
	}

	dir := domain.DirectionO
	if up > down || (up == down && c.Close >= c.Open) {
		dir = domain.DirectionX
	}

	col := domain.Column{
		Index:     0,
		Direction: dir,
		EntryBox:  b.startBox,
		StartTime: b.startTime,
		EndTime:   c.Timestamp,
	}
	if dir == domain.DirectionX {
		col.ExtremeBox = hb
	} else {
		col.ExtremeBox = lb
	}
	b.columns = append(b.columns, b.finish(col))
	d.Changed = true
	d.NewColumn = true
}

func (b *Builder) advance(c *domain.Candle, d *Delta) {
	reversalFirst := false
	switch b.cfg.Policy {
	case PolicyReversalFirst:
		reversalFirst = true
	case PolicyOpenGap:
		reversalFirst = b.breaches(b.current(), b.Box(c.Open))
	}

	if reversalFirst {
		if !b.reverse(c, d) {
			b.extend(c, d)
		}
		return
	}
	b.extend(c, d)
	b.reverse(c, d)
}

func (b *Builder) current() *domain.Column {
	return &b.columns[len(b.columns)-1]
}

// breaches reports whether a box is a full reversal away from the column extreme.
func (b *Builder) breaches(col *domain.Column, box int) bool {
	if col.Direction == domain.DirectionX {
		return col.ExtremeBox-box >= b.cfg.ReversalBoxes
	}
	return box-col.ExtremeBox >= b.cfg.ReversalBoxes
}

func (b *Builder) extend(c *domain.Candle, d *Delta) bool {
	col := b.current()
	if col.Direction == domain.DirectionX {
		hb := b.Box(c.High)
		if hb <= col.ExtremeBox {
			return false
		}
		col.ExtremeBox = hb
	} else {
		lb := b.Box(c.Low)
		if lb >= col.ExtremeBox {
			return false
		}
		col.ExtremeBox = lb
	}
	col.EndTime = c.Timestamp
	*col = b.finish(*col)
	d.Changed = true
	d.NewBox = true
	return true
}

func (b *Builder) reverse(c *domain.Candle, d *Delta) bool {
	col := b.current()
	next := domain.Column{
		Index:     col.Index + 1,
		Direction: col.Direction.Opposite(),
		StartTime: c.Timestamp,
		EndTime:   c.Timestamp,
	}
	if col.Direction == domain.DirectionX {
		lb := b.Box(c.Low)
		if !b.breaches(col, lb) {
			return false
		}
		next.EntryBox = col.ExtremeBox - 1
		next.ExtremeBox = lb
	} else {
		hb := b.Box(c.High)
		if !b.breaches(col, hb) {
			return false
		}
		next.EntryBox = col.ExtremeBox + 1
		next.ExtremeBox = hb
	}

	col.Closed = true
	d.Closed = append(d.Closed, *col)
	b.columns = append(b.columns, b.finish(next))
	d.Changed = true
	d.NewColumn = true
	d.NewBox = false
	return true
}

// finish recomputes the derived fields of a column.
func (b *Builder) finish(col domain.Column) domain.Column {
	col.BoxCount = col.ExtremeBox - col.EntryBox
	if col.BoxCount < 0 {
		col.BoxCount = -col.BoxCount
	}
	col.BoxCount++
	col.TopPrice = b.BoxPrice(col.TopBox())
	col.BottomPrice = b.BoxPrice(col.BottomBox())
	return col
}
