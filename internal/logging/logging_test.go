package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"Warn", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "scan", "INFO")
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	Component("live").Info().Str("instrument", "BTC").Msg("hello")
	Component("live").Debug().Msg("dropped")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one JSON entry, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "scan" || entry["component"] != "live" || entry["instrument"] != "BTC" {
		t.Errorf("unexpected entry: %v", entry)
	}
}
