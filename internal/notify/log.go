package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes alerts to a logger. It never fails.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher creates a log sink. A nil logger discards alerts.
func NewLogPublisher(log *zerolog.Logger) *LogPublisher {
	l := zerolog.Nop()
	if log != nil {
		l = log.With().Str("sink", "log").Logger()
	}
	return &LogPublisher{log: l}
}

// Name returns the sink name.
func (p *LogPublisher) Name() string {
	return "log"
}

// Publish logs the alert.
func (p *LogPublisher) Publish(_ context.Context, a *Alert) error {
	if a == nil || a.Match == nil {
		return nil
	}
	m := a.Match
	ev := p.log.Info().
		Str("alert_id", m.ID).
		Str("instrument", m.InstrumentID).
		Str("kind", string(m.Kind)).
		Str("direction", string(m.Direction)).
		Float64("price", m.TriggerPrice).
		Float64("level", m.Level).
		Int64("trigger_time", m.TriggerTime).
		Bool("super", a.Super)
	if m.Target != nil {
		ev = ev.Float64("target", *m.Target)
	}
	if a.Matrix != nil {
		ev = ev.Int("matrix_score", a.Matrix.TotalScore).Str("matrix_strength", a.Matrix.Strength)
	}
	ev.Msg("pattern alert")
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}

var _ Publisher = (*LogPublisher)(nil)
