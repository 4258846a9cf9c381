package pattern

// Priorities of the catalogue. Lower wins when several patterns complete at once.
const (
	PriorityCatapult    = 1
	PriorityQuadruple   = 2
	PriorityTriple      = 3
	PriorityAFT         = 4
	PriorityPoleFT      = 5
	PriorityDouble      = 6
	PriorityPoleReverse = 7
	PriorityTurtle      = 8
	PriorityABC         = 9
	PriorityTweezer     = 10
)

// Options tunes the matchers.
type Options struct {
	Tolerance     float64 // relative band width, 0.005 = 0.5%
	Lookback      int     // prior closed columns visible to the multi top/bottom band
	MinSeparation int     // minimum column distance between counted band members; same-direction columns are always 2 apart, so only values above 2 reject
	PoleMinBoxes  int     // pole size for POLE_FOLLOW_THROUGH
	EMAValidated  bool    // replace multi top/bottom kinds with their EMA-validated variants
	BestOnly      bool    // emit only the highest-priority new match per evaluation
}

// DefaultOptions returns the standard matcher settings.
func DefaultOptions() Options {
	return Options{
		Tolerance:     0.005,
		Lookback:      10,
		MinSeparation: 2,
		PoleMinBoxes:  3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.Lookback <= 0 {
		o.Lookback = d.Lookback
	}
	if o.MinSeparation <= 0 {
		o.MinSeparation = d.MinSeparation
	}
	if o.PoleMinBoxes <= 0 {
		o.PoleMinBoxes = d.PoleMinBoxes
	}
	return o
}

// turtleRange is the number of columns a turtle breakout must exceed.
const turtleRange = 5

// WindowSize is the number of trailing columns handed to matchers.
func (o Options) WindowSize() int {
	return o.Lookback + turtleRange + 1
}
