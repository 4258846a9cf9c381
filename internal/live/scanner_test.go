package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/matrix"
	"pnf-signal-lab/internal/notify"
	"pnf-signal-lab/internal/pnf"
	"pnf-signal-lab/internal/storage"
	"pnf-signal-lab/internal/storage/memory"
	"pnf-signal-lab/internal/tracker"
)

const t0 int64 = 1_700_000_000_000

// tripleTop completes a TRIPLE_TOP_BUY at index 7 with 10% boxes.
var tripleTop = []float64{10, 20, 14, 20, 14, 20, 14, 21, 21.4, 22}

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []*notify.Alert
	err    error
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, a *notify.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts)
}

type fixture struct {
	alerted   *memory.AlertedStore
	alerts    *memory.AlertStore
	publisher *recordingPublisher
	scanner   *Scanner
}

func newFixture(t *testing.T, calc *matrix.Calculator) *fixture {
	t.Helper()
	cfg := tracker.DefaultConfig()
	cfg.Chart = pnf.Config{BoxSizePct: 0.1, ReversalBoxes: 3}

	f := &fixture{
		alerted:   memory.NewAlertedStore(),
		alerts:    memory.NewAlertStore(),
		publisher: &recordingPublisher{},
	}
	s, err := NewScanner(Config{Tracker: cfg, Matrix: calc}, f.alerted, f.alerts, f.publisher)
	require.NoError(t, err)
	f.scanner = s.WithClock(func() time.Time { return time.UnixMilli(t0 + time.Hour.Milliseconds()) })
	return f
}

func (f *fixture) feed(t *testing.T, inst string, closes ...float64) []*notify.Alert {
	t.Helper()
	var out []*notify.Alert
	for _, c := range pnf.PathCandles(inst, t0, closes...) {
		alerts, err := f.scanner.OnCandle(context.Background(), c)
		require.NoError(t, err)
		out = append(out, alerts...)
	}
	return out
}

func TestScanner_DeliversOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	alerts := f.feed(t, "inst", tripleTop...)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, domain.PatternTripleTopBuy, a.Match.Kind)
	assert.Equal(t, t0+7*domain.MinuteMs, a.Match.TriggerTime)
	assert.Equal(t, t0+time.Hour.Milliseconds(), a.PublishedAt)
	assert.Nil(t, a.Matrix)
	assert.False(t, a.Super)
	assert.Equal(t, 1, f.publisher.count())

	stored, err := f.alerts.GetByInstrument(ctx, "inst")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, a.Match.ID, stored[0].ID)

	marked, err := f.alerted.Contains(ctx, a.Match.Key())
	require.NoError(t, err)
	assert.True(t, marked)
	assert.Equal(t, []string{"inst"}, f.scanner.Instruments())
}

func TestScanner_AlreadyAlertedIsSuppressed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// a previous process already delivered this pattern
	_, err := f.alerted.MarkIfAbsent(ctx, domain.NewAlertKey("inst", domain.PatternTripleTopBuy, 20))
	require.NoError(t, err)

	alerts := f.feed(t, "inst", tripleTop...)
	assert.Empty(t, alerts)
	assert.Equal(t, 0, f.publisher.count())

	stored, err := f.alerts.GetByInstrument(ctx, "inst")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestScanner_SeedMarksWithoutDelivering(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	history := pnf.PathCandles("inst", t0, tripleTop[:9]...)
	require.NoError(t, f.scanner.Seed(ctx, "inst", history))
	assert.Equal(t, 0, f.publisher.count())

	marked, err := f.alerted.Contains(ctx, domain.NewAlertKey("inst", domain.PatternTripleTopBuy, 20))
	require.NoError(t, err)
	assert.True(t, marked)

	// the live stream continues after the seeded history
	next := pnf.PathCandles("inst", t0, tripleTop...)[9]
	alerts, err := f.scanner.OnCandle(ctx, next)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestScanner_InstrumentsAreIndependent(t *testing.T) {
	f := newFixture(t, nil)

	a := f.feed(t, "aaa", tripleTop...)
	b := f.feed(t, "bbb", tripleTop...)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].Match.ID, b[0].Match.ID)
	assert.Equal(t, []string{"aaa", "bbb"}, f.scanner.Instruments())
}

func TestScanner_PublishFailureIsReported(t *testing.T) {
	f := newFixture(t, nil)
	f.publisher.err = errors.New("broker down")

	var failures int
	for _, c := range pnf.PathCandles("inst", t0, tripleTop...) {
		alerts, err := f.scanner.OnCandle(context.Background(), c)
		assert.Empty(t, alerts)
		if err != nil {
			failures++
			assert.ErrorContains(t, err, "broker down")
		}
	}
	assert.Equal(t, 1, failures)
}

func TestScanner_RejectsOutOfOrderCandle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	candles := pnf.PathCandles("inst", t0, 10, 11, 12)

	for _, c := range candles {
		_, err := f.scanner.OnCandle(ctx, c)
		require.NoError(t, err)
	}
	_, err := f.scanner.OnCandle(ctx, candles[0])
	assert.Error(t, err)

	_, err = f.scanner.OnCandle(ctx, nil)
	assert.Error(t, err)
}

func TestScanner_MatrixConfirmation(t *testing.T) {
	calc, err := matrix.NewCalculator(matrix.Config{
		BoxSizes: []float64{0.1},
		Tracker:  tracker.DefaultConfig(),
	})
	require.NoError(t, err)
	f := newFixture(t, calc)

	alerts := f.feed(t, "inst", tripleTop...)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].Matrix)
	assert.Equal(t, "inst", alerts[0].Matrix.InstrumentID)

	res, err := f.scanner.Matrix(context.Background(), "inst")
	require.NoError(t, err)
	assert.Len(t, res.Scores, 1)

	_, err = f.scanner.Matrix(context.Background(), "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScanner_RunStopsOnClose(t *testing.T) {
	f := newFixture(t, nil)
	ch := make(chan *domain.Candle, len(tripleTop)+1)
	for _, c := range pnf.PathCandles("inst", t0, tripleTop...) {
		ch <- c
	}
	ch <- nil // logged, not fatal
	close(ch)

	require.NoError(t, f.scanner.Run(context.Background(), ch))
	assert.Equal(t, 1, f.publisher.count())
}

func TestScanner_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.scanner.Run(ctx, make(chan *domain.Candle))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewScanner_Validation(t *testing.T) {
	_, err := NewScanner(Config{Tracker: tracker.DefaultConfig()}, nil, memory.NewAlertStore(), &recordingPublisher{})
	assert.Error(t, err)

	bad := tracker.DefaultConfig()
	bad.Chart.ReversalBoxes = 0
	_, err = NewScanner(Config{Tracker: bad}, memory.NewAlertedStore(), memory.NewAlertStore(), &recordingPublisher{})
	assert.ErrorIs(t, err, pnf.ErrConfiguration)
}
