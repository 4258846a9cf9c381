// Package pattern classifies multi-column P&F formations into directional signals.
package pattern

import (
	"fmt"
	"sort"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/idhash"
	"pnf-signal-lab/internal/pnf"
)

// Input is the chart state a classifier evaluates.
// Columns is ordered by index and its last element is the open column.
type Input struct {
	InstrumentID string
	Columns      []domain.Column
	Anchors      []domain.AnchorPoint
	Trend        *float64 // EMA at the trigger candle, nil while unseeded
	Close        float64  // close of the trigger candle
	Timestamp    int64    // trigger candle time (ms)
	BoxWidth     float64
}

// Last returns the open column.
func (in *Input) Last() *domain.Column {
	return &in.Columns[len(in.Columns)-1]
}

// Column returns the column with the given chart index, or nil when it is outside the window.
func (in *Input) Column(index int) *domain.Column {
	if len(in.Columns) == 0 {
		return nil
	}
	i := index - in.Columns[0].Index
	if i < 0 || i >= len(in.Columns) {
		return nil
	}
	return &in.Columns[i]
}

// Classifier runs a registry of matchers against chart state.
type Classifier struct {
	registry *Registry
	opts     Options
}

// NewClassifier creates a classifier. A nil registry selects DefaultRegistry(opts).
func NewClassifier(registry *Registry, opts Options) *Classifier {
	opts = opts.withDefaults()
	if registry == nil {
		registry = DefaultRegistry(opts)
	}
	return &Classifier{registry: registry, opts: opts}
}

// Options returns the classifier options.
func (c *Classifier) Options() Options {
	return c.opts
}

// Detect returns the matches that complete on the open column and are not yet in alerted.
// Emitted keys are added to alerted. Finding nothing is not an error; only
// non-alternating columns are rejected.
func (c *Classifier) Detect(in Input, alerted AlertedSet) ([]*domain.PatternMatch, error) {
	if len(in.Columns) == 0 {
		return nil, nil
	}
	if n := c.opts.WindowSize(); len(in.Columns) > n {
		in.Columns = in.Columns[len(in.Columns)-n:]
	}
	if err := pnf.CheckAlternation(in.Columns); err != nil {
		return nil, fmt.Errorf("detect %s: %w", in.InstrumentID, err)
	}

	var found []*domain.PatternMatch
	for _, m := range c.registry.matchers {
		found = append(found, m.Match(&in)...)
	}
	if len(found) == 0 {
		return nil, nil
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Priority != found[j].Priority {
			return found[i].Priority < found[j].Priority
		}
		return found[i].Kind < found[j].Kind
	})

	last := in.Last()
	trend := domain.NewTrendContext(in.Close, in.Trend)
	var out []*domain.PatternMatch
	for _, m := range found {
		m.InstrumentID = in.InstrumentID
		m.TriggerColumnIndex = last.Index
		m.TriggerPrice = in.Close
		m.TriggerTime = in.Timestamp
		m.Trend = trend

		key := m.Key()
		if alerted != nil {
			if alerted.Contains(key) {
				continue
			}
			alerted.Add(key)
		}
		m.ID = idhash.ComputeAlertID(key, m.TriggerColumnIndex, m.TriggerTime)
		if c.opts.BestOnly && len(out) > 0 {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
