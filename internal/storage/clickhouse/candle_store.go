package clickhouse

import (
	"context"
	"fmt"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds multiple candles. Fails entire batch on any duplicate (instrument_id, timestamp).
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(candles))
	for _, c := range candles {
		if c == nil || c.InstrumentID == "" || c.Timestamp < 0 {
			return storage.ErrInvalidInput
		}
		key := fmt.Sprintf("%s|%d", c.InstrumentID, c.Timestamp)
		if _, dup := seen[key]; dup {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	for _, c := range candles {
		exists, err := s.exists(ctx, c.InstrumentID, c.Timestamp)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (instrument_id, timestamp_ms, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err := batch.Append(c.InstrumentID, uint64(c.Timestamp), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves candles for an instrument within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]*domain.Candle, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return nil, nil
	}

	query := `
		SELECT instrument_id, timestamp_ms, open, high, low, close, volume
		FROM candles FINAL
		WHERE instrument_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query candles by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// ListInstruments returns all instrument IDs with at least one candle.
func (s *CandleStore) ListInstruments(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT instrument_id FROM candles ORDER BY instrument_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instrument row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument rows: %w", err)
	}
	return ids, nil
}

func (s *CandleStore) exists(ctx context.Context, instrumentID string, ts int64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM candles WHERE instrument_id = ? AND timestamp_ms = ?
	`, instrumentID, uint64(ts)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var (
			c  domain.Candle
			ts uint64
		)
		if err := rows.Scan(&c.InstrumentID, &ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.Timestamp = int64(ts)
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}
