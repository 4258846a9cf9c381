package backtest

import (
	"fmt"
	"time"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/pnf"
)

// EngineConfig controls how triggers are scored.
type EngineConfig struct {
	Horizons       []domain.Horizon // ascending; defaults to domain.DefaultHorizons
	SuccessHorizon string           // label deciding WasSuccessful; empty disables it
	MaxStaleness   time.Duration    // oldest acceptable horizon sample relative to its target; 0 disables the bound

	Target1Pct  float64 // favorable excursion for HitTarget1Pct
	Target2Pct  float64 // favorable excursion for HitTarget2Pct
	StopLossPct float64 // adverse excursion for HitStopLoss, negative

	WarmupCandles int           // matches on the first N candles are discarded
	MinTriggerGap time.Duration // per-instrument cooldown between accepted triggers
}

// DefaultEngineConfig returns the standard scoring settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Horizons:       domain.DefaultHorizons,
		SuccessHorizon: "30m",
		MaxStaleness:   5 * time.Minute,
		Target1Pct:     1,
		Target2Pct:     2,
		StopLossPct:    -1,
	}
}

// Validate checks the configuration.
func (c EngineConfig) Validate() error {
	if len(c.Horizons) == 0 {
		return fmt.Errorf("%w: no horizons", pnf.ErrConfiguration)
	}
	seen := make(map[string]bool, len(c.Horizons))
	for i, h := range c.Horizons {
		if h.Label == "" || h.Duration <= 0 {
			return fmt.Errorf("%w: invalid horizon %q (%s)", pnf.ErrConfiguration, h.Label, h.Duration)
		}
		if seen[h.Label] {
			return fmt.Errorf("%w: duplicate horizon %q", pnf.ErrConfiguration, h.Label)
		}
		seen[h.Label] = true
		if i > 0 && h.Duration <= c.Horizons[i-1].Duration {
			return fmt.Errorf("%w: horizons must be ascending", pnf.ErrConfiguration)
		}
	}
	if c.SuccessHorizon != "" && !seen[c.SuccessHorizon] {
		return fmt.Errorf("%w: success horizon %q not configured", pnf.ErrConfiguration, c.SuccessHorizon)
	}
	if c.MaxStaleness < 0 || c.MinTriggerGap < 0 || c.WarmupCandles < 0 {
		return fmt.Errorf("%w: negative staleness, gap or warmup", pnf.ErrConfiguration)
	}
	if c.StopLossPct > 0 {
		return fmt.Errorf("%w: stop loss must not be positive, got %v", pnf.ErrConfiguration, c.StopLossPct)
	}
	return nil
}

// MaxHorizon returns the longest horizon.
func (c EngineConfig) MaxHorizon() time.Duration {
	if len(c.Horizons) == 0 {
		return 0
	}
	return c.Horizons[len(c.Horizons)-1].Duration
}
