// Package live turns a candle feed into delivered pattern alerts.
//
// Each instrument gets its own tracker. A new match is claimed in the
// persistent already-alerted store, persisted, optionally scored against the
// multi-box matrix and then published. Any failure along the way means the
// match is not delivered; the scanner itself keeps running.
package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/matrix"
	"pnf-signal-lab/internal/notify"
	"pnf-signal-lab/internal/observability"
	"pnf-signal-lab/internal/storage"
	"pnf-signal-lab/internal/tracker"
)

// DefaultHistory is the number of recent candles kept per instrument for matrix scoring.
const DefaultHistory = 500

// Suppression reasons.
const (
	SuppressedAlreadyAlerted = "already_alerted"
	SuppressedStoreError     = "store_error"
	SuppressedDuplicate      = "duplicate"
)

// Config configures a Scanner.
type Config struct {
	Tracker tracker.Config
	Matrix  *matrix.Calculator // nil disables matrix confirmation
	History int                // defaults to DefaultHistory
	Logger  *zerolog.Logger
}

type instrument struct {
	tracker *tracker.Tracker
	history []*domain.Candle
}

// Scanner feeds live candles through per-instrument trackers.
// OnCandle calls are serialized; Matrix and Instruments may be called concurrently.
type Scanner struct {
	cfg       Config
	alerted   storage.AlertedStore
	alerts    storage.AlertStore
	publisher notify.Publisher
	log       zerolog.Logger
	now       func() time.Time

	mu          sync.Mutex
	instruments map[string]*instrument
}

// NewScanner creates a scanner.
func NewScanner(cfg Config, alerted storage.AlertedStore, alerts storage.AlertStore, publisher notify.Publisher) (*Scanner, error) {
	if alerted == nil || alerts == nil || publisher == nil {
		return nil, errors.New("new scanner: alerted store, alert store and publisher are required")
	}
	if err := cfg.Tracker.Chart.Validate(); err != nil {
		return nil, err
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "live").Logger()
	}
	return &Scanner{
		cfg:         cfg,
		alerted:     alerted,
		alerts:      alerts,
		publisher:   publisher,
		log:         log,
		now:         time.Now,
		instruments: make(map[string]*instrument),
	}, nil
}

// WithClock sets the clock used for PublishedAt.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Seed warms an instrument with history. Matches found while seeding are
// marked alerted but not delivered. Seeding replaces any existing state.
func (s *Scanner) Seed(ctx context.Context, instrumentID string, history []*domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.newInstrument(instrumentID)
	if err != nil {
		return err
	}
	for _, c := range history {
		matches, err := st.tracker.Feed(c)
		if err != nil {
			return fmt.Errorf("seed %s at %d: %w", instrumentID, c.Timestamp, err)
		}
		st.remember(c, s.cfg.History)
		for _, m := range matches {
			if _, err := s.alerted.MarkIfAbsent(ctx, m.Key()); err != nil {
				return fmt.Errorf("seed %s: mark %s: %w", instrumentID, m.Key(), err)
			}
		}
	}
	s.instruments[instrumentID] = st
	observability.SetTrackedInstruments(len(s.instruments))
	s.log.Info().Str("instrument", instrumentID).Int("candles", len(history)).Msg("instrument seeded")
	return nil
}

// OnCandle processes one closed candle and returns the alerts it delivered.
// The error reports the first failure; matches that failed are not delivered.
func (s *Scanner) OnCandle(ctx context.Context, c *domain.Candle) ([]*notify.Alert, error) {
	if c == nil {
		return nil, errors.New("nil candle")
	}

	s.mu.Lock()
	st, ok := s.instruments[c.InstrumentID]
	if !ok {
		var err error
		st, err = s.newInstrument(c.InstrumentID)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.instruments[c.InstrumentID] = st
		observability.SetTrackedInstruments(len(s.instruments))
	}
	closedBefore := st.tracker.ClosedColumns()
	matches, err := st.tracker.Feed(c)
	if err != nil {
		s.mu.Unlock()
		observability.RecordCandleError("rejected")
		return nil, fmt.Errorf("feed %s: %w", c.InstrumentID, err)
	}
	st.remember(c, s.cfg.History)
	observability.RecordColumnsClosed(st.tracker.ClosedColumns() - closedBefore)
	var history []*domain.Candle
	if len(matches) > 0 && s.cfg.Matrix != nil {
		history = append(history, st.history...)
	}
	s.mu.Unlock()

	observability.RecordCandle("live")
	observability.UpdateLastCandle(c.Timestamp)

	var delivered []*notify.Alert
	var errs []error
	for _, m := range matches {
		observability.RecordPattern(string(m.Kind), string(m.Direction))
		a, err := s.deliver(ctx, m, history)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if a != nil {
			delivered = append(delivered, a)
		}
	}
	return delivered, errors.Join(errs...)
}

// deliver claims, persists, scores and publishes one match.
// A nil alert with nil error means the match was suppressed.
func (s *Scanner) deliver(ctx context.Context, m *domain.PatternMatch, history []*domain.Candle) (*notify.Alert, error) {
	log := s.log.With().Str("instrument", m.InstrumentID).Str("kind", string(m.Kind)).Logger()

	fresh, err := s.alerted.MarkIfAbsent(ctx, m.Key())
	if err != nil {
		observability.RecordSuppressed(SuppressedStoreError)
		return nil, fmt.Errorf("claim %s: %w", m.Key(), err)
	}
	if !fresh {
		observability.RecordSuppressed(SuppressedAlreadyAlerted)
		log.Debug().Str("key", m.Key().String()).Msg("already alerted")
		return nil, nil
	}

	if err := s.alerts.Insert(ctx, m); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			observability.RecordSuppressed(SuppressedDuplicate)
			return nil, nil
		}
		observability.RecordSuppressed(SuppressedStoreError)
		return nil, fmt.Errorf("persist alert %s: %w", m.ID, err)
	}

	a := &notify.Alert{Match: m, PublishedAt: s.now().UnixMilli()}
	if s.cfg.Matrix != nil && len(history) > 0 {
		res, err := s.cfg.Matrix.Score(ctx, m.InstrumentID, history)
		if err != nil {
			log.Warn().Err(err).Msg("matrix scoring failed")
		} else {
			a.Matrix = res
			a.Super = matrix.Confirms(res, m.Direction)
		}
	}

	err = s.publisher.Publish(ctx, a)
	observability.RecordPublish(s.publisher.Name(), err)
	if err != nil {
		return nil, fmt.Errorf("publish alert %s: %w", m.ID, err)
	}
	log.Info().
		Str("alert_id", m.ID).
		Float64("price", m.TriggerPrice).
		Bool("super", a.Super).
		Msg("alert delivered")
	return a, nil
}

// Run consumes candles until ctx is cancelled or the channel closes.
// Per-candle failures are logged and never stop the loop.
func (s *Scanner) Run(ctx context.Context, candles <-chan *domain.Candle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-candles:
			if !ok {
				return nil
			}
			s.safeOnCandle(ctx, c)
		}
	}
}

func (s *Scanner) safeOnCandle(ctx context.Context, c *domain.Candle) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordCandleError("panic")
			s.log.Error().Interface("panic", r).Msg("candle processing panicked")
		}
	}()
	if _, err := s.OnCandle(ctx, c); err != nil {
		s.log.Warn().Err(err).Msg("candle processing failed")
	}
}

// Matrix scores an instrument over its retained history.
func (s *Scanner) Matrix(ctx context.Context, instrumentID string) (*domain.MatrixResult, error) {
	if s.cfg.Matrix == nil {
		return nil, errors.New("matrix scoring disabled")
	}
	s.mu.Lock()
	st, ok := s.instruments[instrumentID]
	var history []*domain.Candle
	if ok {
		history = append(history, st.history...)
	}
	s.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.cfg.Matrix.Score(ctx, instrumentID, history)
}

// Instruments returns the tracked instruments, sorted.
func (s *Scanner) Instruments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.instruments))
	for id := range s.instruments {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// newInstrument builds fresh state; callers hold s.mu.
func (s *Scanner) newInstrument(instrumentID string) (*instrument, error) {
	cfg := s.cfg.Tracker
	if cfg.Logger == nil {
		cfg.Logger = &s.log
	}
	t, err := tracker.New(instrumentID, cfg, nil)
	if err != nil {
		return nil, err
	}
	return &instrument{tracker: t}, nil
}

// remember appends to the bounded history.
func (st *instrument) remember(c *domain.Candle, limit int) {
	st.history = append(st.history, c)
	if over := len(st.history) - limit; over > 0 {
		copy(st.history, st.history[over:])
		for i := len(st.history) - over; i < len(st.history); i++ {
			st.history[i] = nil
		}
		st.history = st.history[:len(st.history)-over]
	}
}
