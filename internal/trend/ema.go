// Package trend provides the moving-average trend reference used by the classifier.
package trend

import (
	"math"

	"github.com/markcheno/go-talib"
)

// DefaultPeriod is the EMA period used for trend context.
const DefaultPeriod = 20

// EMASeries returns the exponential moving average of closes.
// The average is seeded with the simple mean of the first period values;
// entries before the seed index are NaN.
func EMASeries(closes []float64, period int) []float64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	out := make([]float64, len(closes))
	if len(closes) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	ema := talib.Ema(closes, period)
	for i := range out {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = ema[i]
	}
	return out
}

// SeriesAt evaluates EMASeries over closes and returns its values at the
// given indices, nil where the average is not seeded or the index is out of range.
func SeriesAt(closes []float64, period int, indices []int) []*float64 {
	series := EMASeries(closes, period)
	out := make([]*float64, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(series) || math.IsNaN(series[idx]) {
			continue
		}
		v := series[idx]
		out[i] = &v
	}
	return out
}

// EMA is the incremental form of EMASeries for streaming closes.
type EMA struct {
	period int
	k      float64
	count  int
	sum    float64
	value  float64
}

// NewEMA creates an incremental EMA. A non-positive period selects DefaultPeriod.
func NewEMA(period int) *EMA {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &EMA{
		period: period,
		k:      2.0 / float64(period+1),
	}
}

// Update adds a close and returns the current average once it is seeded.
func (e *EMA) Update(close float64) (float64, bool) {
	e.count++
	switch {
	case e.count < e.period:
		e.sum += close
		return 0, false
	case e.count == e.period:
		e.sum += close
		e.value = e.sum / float64(e.period)
	default:
		e.value = ((close - e.value) * e.k) + e.value
	}
	return e.value, true
}

// Value returns the current average, if seeded.
func (e *EMA) Value() (float64, bool) {
	if e.count < e.period {
		return 0, false
	}
	return e.value, true
}

// Pointer returns the current average as a pointer, nil until seeded.
func (e *EMA) Pointer() *float64 {
	v, ok := e.Value()
	if !ok {
		return nil
	}
	return &v
}

// Period returns the EMA period.
func (e *EMA) Period() int {
	return e.period
}
