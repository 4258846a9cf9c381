package pnf

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"pnf-signal-lab/internal/domain"
)

// tenth returns a config with box width 1.0 when the first close is 10.
func tenth() Config {
	return Config{BoxSizePct: 0.1, ReversalBoxes: 3, Policy: PolicyExtensionFirst}
}

func TestBuilder_RisingSeriesSingleColumn(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	b, err := NewBuilder(DefaultConfig())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	lastCount := 0
	for _, c := range PathCandles("inst", 0, closes...) {
		d, err := b.Feed(c)
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		if len(d.Closed) != 0 {
			t.Fatalf("unexpected closed column at %d", c.Timestamp)
		}
		if d.Open == nil {
			continue
		}
		if d.Open.BoxCount < lastCount {
			t.Fatalf("box count decreased: %d -> %d", lastCount, d.Open.BoxCount)
		}
		lastCount = d.Open.BoxCount
	}

	cols := b.Columns()
	if len(cols) != 1 {
		t.Fatalf("expected 1 column, got %d", len(cols))
	}
	if cols[0].Direction != domain.DirectionX || cols[0].Closed {
		t.Errorf("expected open X column, got %+v", cols[0])
	}
	if cols[0].BoxCount != 50 {
		t.Errorf("expected 50 boxes, got %d", cols[0].BoxCount)
	}
	if b.BoxWidth() != 1 {
		t.Errorf("expected box width 1, got %v", b.BoxWidth())
	}
}

func TestBuilder_Reversal(t *testing.T) {
	cols, err := BuildColumns(PathCandles("inst", 0, 10, 20, 14), tenth())
	if err != nil {
		t.Fatalf("BuildColumns failed: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(cols))
	}

	x, o := cols[0], cols[1]
	if x.Direction != domain.DirectionX || !x.Closed || x.EntryBox != 10 || x.ExtremeBox != 20 || x.BoxCount != 11 {
		t.Errorf("unexpected X column: %+v", x)
	}
	if o.Direction != domain.DirectionO || o.Closed || o.EntryBox != 19 || o.ExtremeBox != 14 || o.BoxCount != 6 {
		t.Errorf("unexpected O column: %+v", o)
	}
	if o.TopPrice != 19 || o.BottomPrice != 14 {
		t.Errorf("unexpected O prices: top=%v bottom=%v", o.TopPrice, o.BottomPrice)
	}
}

func TestBuilder_SmallPullbackAbsorbed(t *testing.T) {
	b, _ := NewBuilder(tenth())
	candles := PathCandles("inst", 0, 10, 20, 18)
	for _, c := range candles[:2] {
		if _, err := b.Feed(c); err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
	}

	d, err := b.Feed(candles[2])
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if d.Changed || d.NewBox || d.NewColumn {
		t.Errorf("expected no mutation, got %+v", d)
	}
	if d.Open == nil || d.Open.ExtremeBox != 20 {
		t.Errorf("expected open column at 20, got %+v", d.Open)
	}
}

func TestBuilder_ReversalDelta(t *testing.T) {
	b, _ := NewBuilder(tenth())
	candles := PathCandles("inst", 0, 10, 20, 14)
	_, _ = b.Feed(candles[0])
	_, _ = b.Feed(candles[1])

	d, err := b.Feed(candles[2])
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if !d.Changed || !d.NewColumn || d.NewBox {
		t.Errorf("unexpected delta flags: %+v", d)
	}
	if len(d.Closed) != 1 || d.Closed[0].Index != 0 || !d.Closed[0].Closed {
		t.Fatalf("expected column 0 closed, got %+v", d.Closed)
	}
	if d.Open == nil || d.Open.Index != 1 || d.Open.Direction != domain.DirectionO {
		t.Errorf("unexpected open column: %+v", d.Open)
	}
}

func TestBuilder_IntraCandlePolicies(t *testing.T) {
	// X column at 20, then one wide candle.
	base := PathCandles("inst", 0, 10, 20)

	tests := []struct {
		name    string
		policy  Policy
		candle  domain.Candle
		wantDir []domain.Direction
		wantExt []int
	}{
		{
			name:    "extension first extends then reverses",
			policy:  PolicyExtensionFirst,
			candle:  domain.Candle{Open: 20, High: 22, Low: 18, Close: 18.5},
			wantDir: []domain.Direction{domain.DirectionX, domain.DirectionO},
			wantExt: []int{22, 18},
		},
		{
			name:    "reversal first misses the reversal and extends",
			policy:  PolicyReversalFirst,
			candle:  domain.Candle{Open: 20, High: 22, Low: 18, Close: 18.5},
			wantDir: []domain.Direction{domain.DirectionX},
			wantExt: []int{22},
		},
		{
			name:    "open gap without gap behaves as extension first",
			policy:  PolicyOpenGap,
			candle:  domain.Candle{Open: 20, High: 22, Low: 18, Close: 18.5},
			wantDir: []domain.Direction{domain.DirectionX, domain.DirectionO},
			wantExt: []int{22, 18},
		},
		{
			name:    "extension first on gap down",
			policy:  PolicyExtensionFirst,
			candle:  domain.Candle{Open: 16, High: 23, Low: 16, Close: 17},
			wantDir: []domain.Direction{domain.DirectionX, domain.DirectionO},
			wantExt: []int{23, 16},
		},
		{
			name:    "open gap reverses first on gap down",
			policy:  PolicyOpenGap,
			candle:  domain.Candle{Open: 16, High: 23, Low: 16, Close: 17},
			wantDir: []domain.Direction{domain.DirectionX, domain.DirectionO},
			wantExt: []int{20, 16},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tenth()
			cfg.Policy = tt.policy
			c := tt.candle
			c.InstrumentID = "inst"
			c.Timestamp = 10 * domain.MinuteMs

			candles := append(append([]*domain.Candle{}, base...), &c)
			cols, err := BuildColumns(candles, cfg)
			if err != nil {
				t.Fatalf("BuildColumns failed: %v", err)
			}
			if len(cols) != len(tt.wantDir) {
				t.Fatalf("expected %d columns, got %d: %+v", len(tt.wantDir), len(cols), cols)
			}
			for i := range cols {
				if cols[i].Direction != tt.wantDir[i] || cols[i].ExtremeBox != tt.wantExt[i] {
					t.Errorf("column %d: got %s@%d, want %s@%d",
						i, cols[i].Direction, cols[i].ExtremeBox, tt.wantDir[i], tt.wantExt[i])
				}
			}
			if err := Validate(cols); err != nil {
				t.Errorf("Validate failed: %v", err)
			}
		})
	}
}

func TestBuilder_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero box size", Config{BoxSizePct: 0, ReversalBoxes: 3}},
		{"negative box size", Config{BoxSizePct: -0.01, ReversalBoxes: 3}},
		{"zero reversal", Config{BoxSizePct: 0.01, ReversalBoxes: 0}},
		{"unknown policy", Config{BoxSizePct: 0.01, ReversalBoxes: 3, Policy: "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBuilder(tt.cfg); !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
			if _, err := BuildColumns(nil, tt.cfg); !errors.Is(err, ErrConfiguration) {
				t.Errorf("BuildColumns: expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestBuilder_InvalidInput(t *testing.T) {
	ok := PathCandles("inst", 0, 10, 11)

	tests := []struct {
		name    string
		candles []*domain.Candle
	}{
		{"nil candle", []*domain.Candle{ok[0], nil}},
		{"unordered", []*domain.Candle{ok[1], ok[0]}},
		{"duplicate timestamp", []*domain.Candle{ok[0], ok[0]}},
		{"mixed instruments", []*domain.Candle{ok[0], {InstrumentID: "other", Timestamp: domain.MinuteMs, Open: 10, High: 10, Low: 10, Close: 10}}},
		{"non-positive price", []*domain.Candle{{InstrumentID: "inst", Open: 0, High: 1, Low: 0, Close: 1}}},
		{"high below close", []*domain.Candle{{InstrumentID: "inst", Open: 10, High: 10, Low: 9, Close: 11}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildColumns(tt.candles, tenth()); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestBuilder_ErrorLeavesStateUnchanged(t *testing.T) {
	b, _ := NewBuilder(tenth())
	candles := PathCandles("inst", 0, 10, 20)
	for _, c := range candles {
		_, _ = b.Feed(c)
	}
	before := b.Columns()

	if _, err := b.Feed(candles[0]); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !reflect.DeepEqual(before, b.Columns()) {
		t.Error("columns changed after rejected candle")
	}
}

// randomWalk returns a deterministic close series.
func randomWalk(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= 1 + (rng.Float64()-0.5)*0.03
		out[i] = p
	}
	return out
}

func TestBuilder_AlternationAndDeterminism(t *testing.T) {
	configs := []Config{
		{BoxSizePct: 0.0025, ReversalBoxes: 3},
		{BoxSizePct: 0.005, ReversalBoxes: 1},
		{BoxSizePct: 0.01, ReversalBoxes: 3, Policy: PolicyReversalFirst},
		{BoxSizePct: 0.015, ReversalBoxes: 2, Policy: PolicyOpenGap},
	}
	for seed := int64(1); seed <= 5; seed++ {
		candles := PathCandles("inst", 0, randomWalk(seed, 600)...)
		for _, cfg := range configs {
			first, err := BuildColumns(candles, cfg)
			if err != nil {
				t.Fatalf("seed %d cfg %+v: %v", seed, cfg, err)
			}
			if err := Validate(first); err != nil {
				t.Errorf("seed %d cfg %+v: %v", seed, cfg, err)
			}
			second, _ := BuildColumns(candles, cfg)
			if !reflect.DeepEqual(first, second) {
				t.Errorf("seed %d cfg %+v: non-deterministic output", seed, cfg)
			}
		}
	}
}

func TestBuilder_IncrementalMatchesBatch(t *testing.T) {
	candles := PathCandles("inst", 0, randomWalk(42, 400)...)
	batch, err := BuildColumns(candles, DefaultConfig())
	if err != nil {
		t.Fatalf("BuildColumns failed: %v", err)
	}

	b, _ := NewBuilder(DefaultConfig())
	var closed []domain.Column
	var open *domain.Column
	for _, c := range candles {
		d, err := b.Feed(c)
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		closed = append(closed, d.Closed...)
		open = d.Open
	}
	if open != nil {
		closed = append(closed, *open)
	}
	if !reflect.DeepEqual(batch, closed) {
		t.Error("delta stream does not reproduce batch columns")
	}
}

func TestValidate(t *testing.T) {
	good, _ := BuildColumns(PathCandles("inst", 0, 10, 20, 14, 20), tenth())
	if err := Validate(good); err != nil {
		t.Fatalf("Validate failed on builder output: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(cols []domain.Column)
	}{
		{"same direction", func(cols []domain.Column) { cols[1].Direction = domain.DirectionX }},
		{"bad box count", func(cols []domain.Column) { cols[0].BoxCount++ }},
		{"gap in indices", func(cols []domain.Column) { cols[2].Index = 5 }},
		{"open in the middle", func(cols []domain.Column) { cols[1].Closed = false }},
		{"closed tail", func(cols []domain.Column) { cols[2].Closed = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := make([]domain.Column, len(good))
			copy(cols, good)
			tt.mutate(cols)
			if err := Validate(cols); !errors.Is(err, ErrInvariantViolation) {
				t.Errorf("expected ErrInvariantViolation, got %v", err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"":                PolicyExtensionFirst,
		"Extension_First": PolicyExtensionFirst,
		"reversal_first":  PolicyReversalFirst,
		" open_gap ":      PolicyOpenGap,
	} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParsePolicy("bogus"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
