package idhash

import (
	"testing"

	"pnf-signal-lab/internal/domain"
)

func TestComputeAlertID(t *testing.T) {
	tests := []struct {
		name        string
		key         domain.AlertKey
		columnIndex int
		triggerTime int64
	}{
		{
			name:        "triple top",
			key:         domain.NewAlertKey("NSE_EQ|INE002A01018", domain.PatternTripleTopBuy, 2450.5),
			columnIndex: 6,
			triggerTime: 1700000000000,
		},
		{
			name:        "double bottom",
			key:         domain.NewAlertKey("NSE_EQ|INE009A01021", domain.PatternDoubleBottomSell, 1510),
			columnIndex: 11,
			triggerTime: 1700000360000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAlertID(tt.key, tt.columnIndex, tt.triggerTime)
			if len(got) != 64 {
				t.Errorf("ComputeAlertID() length = %d, want 64", len(got))
			}

			// Verify determinism: same inputs should produce same output
			if again := ComputeAlertID(tt.key, tt.columnIndex, tt.triggerTime); got != again {
				t.Errorf("ComputeAlertID() not deterministic: %s != %s", got, again)
			}
		})
	}
}

func TestComputeAlertID_DifferentInputs(t *testing.T) {
	key := domain.NewAlertKey("inst", domain.PatternDoubleTopBuy, 20)
	base := ComputeAlertID(key, 4, 1000)

	other := domain.NewAlertKey("inst", domain.PatternTripleTopBuy, 20)
	if ComputeAlertID(other, 4, 1000) == base {
		t.Error("different kind produced same id")
	}
	if ComputeAlertID(key, 5, 1000) == base {
		t.Error("different column produced same id")
	}
	if ComputeAlertID(key, 4, 2000) == base {
		t.Error("different trigger time produced same id")
	}
}

func TestComputeResultID(t *testing.T) {
	a := ComputeResultID("run-1", "pnf", "alert-1")
	b := ComputeResultID("run-1", "pnf", "alert-1")
	c := ComputeResultID("run-2", "pnf", "alert-1")

	if len(a) != 64 {
		t.Errorf("ComputeResultID() length = %d, want 64", len(a))
	}
	if a != b {
		t.Error("ComputeResultID() not deterministic")
	}
	if a == c {
		t.Error("different run produced same id")
	}
}
