package feed

import (
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	in := `instrument_id,timestamp,open,high,low,close,volume
BTC,60000,100,101,99,100.5,10
BTC, 1970-01-01T00:02:00Z, 100.5, 102, 100, 101, 12
`
	got, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[0].Timestamp != 60_000 || got[0].Close != 100.5 {
		t.Errorf("unexpected first candle: %+v", got[0])
	}
	if got[1].Timestamp != 120_000 || got[1].Volume != 12 {
		t.Errorf("unexpected second candle: %+v", got[1])
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bad timestamp", "BTC,yesterday,1,1,1,1,1\n"},
		{"bad price", "BTC,60000,x,1,1,1,1\n"},
		{"low above high", "BTC,60000,1,1,2,1,1\n"},
		{"missing field", "BTC,60000,1,1,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.in)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
