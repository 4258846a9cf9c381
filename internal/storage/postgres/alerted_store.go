package postgres

import (
	"context"
	"fmt"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// AlertedStore implements storage.AlertedStore using PostgreSQL.
// The primary key on (instrument_id, kind, level) makes MarkIfAbsent atomic.
type AlertedStore struct {
	pool *Pool
}

// NewAlertedStore creates a new AlertedStore.
func NewAlertedStore(pool *Pool) *AlertedStore {
	return &AlertedStore{pool: pool}
}

var _ storage.AlertedStore = (*AlertedStore)(nil)

// MarkIfAbsent records the key and reports whether it was newly added.
func (s *AlertedStore) MarkIfAbsent(ctx context.Context, key domain.AlertKey) (bool, error) {
	if key.InstrumentID == "" || key.Kind == "" {
		return false, storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO alerted_keys (instrument_id, kind, level)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, key.InstrumentID, string(key.Kind), key.Level)
	if err != nil {
		return false, fmt.Errorf("mark alerted key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Contains reports whether the key has been recorded.
func (s *AlertedStore) Contains(ctx context.Context, key domain.AlertKey) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alerted_keys WHERE instrument_id = $1 AND kind = $2 AND level = $3
		)
	`, key.InstrumentID, string(key.Kind), key.Level).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check alerted key: %w", err)
	}
	return exists, nil
}
