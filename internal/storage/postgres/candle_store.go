package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds multiple candles atomically. Fails entire batch on any duplicate.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO candles (instrument_id, timestamp_ms, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, c := range candles {
		if c == nil || c.InstrumentID == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(query, c.InstrumentID, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	br := tx.SendBatch(ctx, batch)
	for range candles {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return writeError("insert candle in bulk", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves candles for an instrument within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT instrument_id, timestamp_ms, open, high, low, close, volume
		FROM candles
		WHERE instrument_id = $1 AND timestamp_ms >= $2 AND timestamp_ms <= $3
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get candles by time range: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.InstrumentID, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}

// ListInstruments returns all instrument IDs with at least one candle.
func (s *CandleStore) ListInstruments(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT instrument_id FROM candles ORDER BY instrument_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect instruments: %w", err)
	}
	return ids, nil
}
