package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pnf-signal-lab/internal/domain"
)

// csvColumns is the candle CSV layout. A header row with these names is optional.
var csvColumns = []string{"instrument_id", "timestamp", "open", "high", "low", "close", "volume"}

// ReadCSV parses candles from r. Timestamps are Unix milliseconds or RFC3339.
// Rows failing validation abort the read with the offending line number.
func ReadCSV(r io.Reader) ([]*domain.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvColumns)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var out []*domain.Candle
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), csvColumns[0]) {
			continue
		}
		c, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
}

func parseRecord(rec []string) (*domain.Candle, error) {
	ts, err := parseTimestamp(strings.TrimSpace(rec[1]))
	if err != nil {
		return nil, err
	}
	var v [5]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[i+2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", csvColumns[i+2], err)
		}
		v[i] = f
	}
	c := &domain.Candle{
		InstrumentID: strings.TrimSpace(rec[0]),
		Timestamp:    ts,
		Open:         v[0],
		High:         v[1],
		Low:          v[2],
		Close:        v[3],
		Volume:       v[4],
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func parseTimestamp(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: want Unix ms or RFC3339", s)
	}
	return t.UnixMilli(), nil
}
