package backtest

import (
	"context"
	"fmt"
	"sort"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/idhash"
	"pnf-signal-lab/internal/lookup"
	"pnf-signal-lab/internal/replay"
)

// pending is a result still collecting post-trigger data.
type pending struct {
	result  *domain.BacktestResult
	sampled []bool
	done    int

	mfe, mae         *float64
	mfeTime, maeTime *int64
}

// Engine scores one instrument's trigger output on the replay cursor.
// Implements replay.CursorEngine. Not safe for concurrent use.
type Engine struct {
	runID     string
	trigger   Trigger
	cfg       EngineConfig
	evalUntil int64 // triggers after this time are not evaluated

	maxHorizonMs int64
	stalenessMs  int64
	gapMs        int64

	evaluated   int // window length at the last Evaluate call
	lastTrigger *int64

	open     []*pending
	finished []*domain.BacktestResult
	matches  int
}

// NewEngine creates an engine for one instrument run.
func NewEngine(runID string, trigger Trigger, cfg EngineConfig, evalUntil int64) (*Engine, error) {
	if trigger == nil {
		return nil, fmt.Errorf("new engine: nil trigger")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		runID:        runID,
		trigger:      trigger,
		cfg:          cfg,
		evalUntil:    evalUntil,
		maxHorizonMs: cfg.MaxHorizon().Milliseconds(),
		stalenessMs:  cfg.MaxStaleness.Milliseconds(),
		gapMs:        cfg.MinTriggerGap.Milliseconds(),
	}, nil
}

// OnTick advances pending results with the new candles, then evaluates the
// trigger over candles up to min(Now, evalUntil).
func (e *Engine) OnTick(ctx context.Context, tick *replay.Tick) error {
	fresh := tick.Visible[len(tick.Visible)-tick.New:]
	for _, p := range e.open {
		e.track(p, fresh)
		e.sample(p, tick.Visible)
	}
	e.flush()

	n := lookup.IndexAtOrBefore(tick.Visible, e.evalUntil) + 1
	if n == 0 || n == e.evaluated {
		return nil
	}
	e.evaluated = n
	window := tick.Visible[:n:n]

	found, err := e.trigger.Evaluate(ctx, window)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", e.trigger.Name(), err)
	}
	for _, m := range found {
		if !e.accept(m, window) {
			continue
		}
		p, err := e.start(m)
		if err != nil {
			return err
		}
		e.track(p, tick.Visible)
		e.sample(p, tick.Visible)
		e.open = append(e.open, p)
	}
	e.flush()
	return nil
}

// OnEnd finalizes every pending result. Horizons the data never reached
// stay nil.
func (e *Engine) OnEnd(_ context.Context, all []*domain.Candle) error {
	for _, p := range e.open {
		e.sample(p, all)
		e.finish(p)
	}
	e.open = nil
	return nil
}

// Results returns finalized results ordered by trigger time, then id.
func (e *Engine) Results() []*domain.BacktestResult {
	out := make([]*domain.BacktestResult, len(e.finished))
	copy(out, e.finished)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TriggerTime != out[j].TriggerTime {
			return out[i].TriggerTime < out[j].TriggerTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Pending returns the number of results not yet finalized.
func (e *Engine) Pending() int {
	return len(e.open)
}

// Matches returns the number of accepted trigger matches.
func (e *Engine) Matches() int {
	return e.matches
}

// accept applies the warmup, evaluation bound and cooldown filters.
func (e *Engine) accept(m *domain.PatternMatch, window []*domain.Candle) bool {
	if m == nil || m.TriggerTime > e.evalUntil {
		return false
	}
	if e.cfg.WarmupCandles > 0 {
		if len(window) < e.cfg.WarmupCandles || m.TriggerTime < window[e.cfg.WarmupCandles-1].Timestamp {
			return false
		}
	}
	if e.lastTrigger != nil && m.TriggerTime-*e.lastTrigger < e.gapMs {
		return false
	}
	return true
}

func (e *Engine) start(m *domain.PatternMatch) (*pending, error) {
	if !(m.TriggerPrice > 0) {
		return nil, fmt.Errorf("%s match %s at %d: non-positive trigger price", e.trigger.Name(), m.Kind, m.TriggerTime)
	}
	if m.Direction != domain.SignalBuy && m.Direction != domain.SignalSell {
		return nil, fmt.Errorf("%s match %s at %d: unknown direction %q", e.trigger.Name(), m.Kind, m.TriggerTime, m.Direction)
	}
	if m.ID == "" {
		m.ID = idhash.ComputeAlertID(m.Key(), m.TriggerColumnIndex, m.TriggerTime)
	}

	ts := m.TriggerTime
	e.lastTrigger = &ts
	e.matches++

	r := &domain.BacktestResult{
		ID:           idhash.ComputeResultID(e.runID, e.trigger.Name(), m.ID),
		RunID:        e.runID,
		Trigger:      e.trigger.Name(),
		Alert:        m,
		InstrumentID: m.InstrumentID,
		TriggerPrice: m.TriggerPrice,
		TriggerTime:  m.TriggerTime,
		Horizons:     make([]domain.HorizonResult, len(e.cfg.Horizons)),
	}
	for i, h := range e.cfg.Horizons {
		r.Horizons[i] = domain.HorizonResult{Label: h.Label, OffsetMs: h.Duration.Milliseconds()}
	}
	return &pending{result: r, sampled: make([]bool, len(e.cfg.Horizons))}, nil
}

// track folds candles inside (trigger, trigger+maxHorizon] into the excursions.
func (e *Engine) track(p *pending, candles []*domain.Candle) {
	r := p.result
	end := r.TriggerTime + e.maxHorizonMs
	for _, c := range candles {
		if c.Timestamp <= r.TriggerTime || c.Timestamp > end {
			continue
		}
		fav, adv := excursion(r.Alert.Direction, r.TriggerPrice, c)
		if p.mfe == nil || fav > *p.mfe {
			ts := c.Timestamp
			p.mfe, p.mfeTime = &fav, &ts
		}
		if p.mae == nil || adv < *p.mae {
			ts := c.Timestamp
			p.mae, p.maeTime = &adv, &ts
		}
	}
}

// sample settles the horizons the data has decided. A horizon is reached when
// the latest candle inside (trigger, trigger+maxHorizon] is at or after its
// target; candles arrive in order, so everything at or before the target is
// final by then. Once a candle past the longest horizon is visible, horizons
// still unreached stay nil.
func (e *Engine) sample(p *pending, visible []*domain.Candle) {
	if len(visible) == 0 {
		return
	}
	r := p.result
	end := r.TriggerTime + e.maxHorizonMs
	i := lookup.IndexAtOrBefore(visible, end)
	if i < 0 {
		return
	}
	lastIn := visible[i].Timestamp
	past := visible[len(visible)-1].Timestamp > end
	for k, h := range e.cfg.Horizons {
		if p.sampled[k] {
			continue
		}
		switch {
		case lastIn > r.TriggerTime && HorizonReached(r.TriggerTime, h.Duration.Milliseconds(), lastIn):
			e.sampleAt(p, k, h, visible)
		case past:
			p.sampled[k] = true
			p.done++
		}
	}
}

// HorizonReached reports whether data ending at lastTs covers trigger+offset.
func HorizonReached(trigger, offsetMs, lastTs int64) bool {
	return lastTs >= trigger+offsetMs
}

func (e *Engine) sampleAt(p *pending, i int, h domain.Horizon, candles []*domain.Candle) {
	r := p.result
	p.sampled[i] = true
	p.done++
	c := lookup.CloseWithin(candles, r.TriggerTime, r.TriggerTime+h.Duration.Milliseconds(), e.stalenessMs)
	if c == nil {
		return
	}
	price := c.Close
	ret := DirectionalReturn(r.Alert.Direction, r.TriggerPrice, price)
	r.Horizons[i].Price = &price
	r.Horizons[i].ReturnPct = &ret
}

// flush finalizes pending results whose horizons are all sampled.
func (e *Engine) flush() {
	kept := e.open[:0]
	for _, p := range e.open {
		if p.done == len(e.cfg.Horizons) {
			e.finish(p)
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(e.open); i++ {
		e.open[i] = nil
	}
	e.open = kept
}

func (e *Engine) finish(p *pending) {
	r := p.result
	r.MaxFavorableExcursionPct = p.mfe
	r.MaxAdverseExcursionPct = p.mae
	r.MaxFavorableTime = p.mfeTime
	r.MaxAdverseTime = p.maeTime
	if p.mfe != nil {
		r.HitTarget1Pct = *p.mfe >= e.cfg.Target1Pct
		r.HitTarget2Pct = *p.mfe >= e.cfg.Target2Pct
	}
	if p.mae != nil {
		r.HitStopLoss = *p.mae <= e.cfg.StopLossPct
	}
	if e.cfg.SuccessHorizon != "" {
		if ret := r.ReturnAt(e.cfg.SuccessHorizon); ret != nil {
			ok := *ret > 0
			r.WasSuccessful = &ok
		}
	}
	e.finished = append(e.finished, r)
}

// DirectionalReturn is the percent move from entry to price, positive when it favors dir.
func DirectionalReturn(dir domain.Signal, entry, price float64) float64 {
	if dir == domain.SignalSell {
		return (entry - price) / entry * 100
	}
	return (price - entry) / entry * 100
}

// excursion returns the favorable and adverse percent moves a candle reaches from entry.
func excursion(dir domain.Signal, entry float64, c *domain.Candle) (favorable, adverse float64) {
	if dir == domain.SignalSell {
		return (entry - c.Low) / entry * 100, (entry - c.High) / entry * 100
	}
	return (c.High - entry) / entry * 100, (c.Low - entry) / entry * 100
}

var _ replay.CursorEngine = (*Engine)(nil)
