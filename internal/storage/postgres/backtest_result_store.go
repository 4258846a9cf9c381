package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// BacktestResultStore implements storage.BacktestResultStore using PostgreSQL.
// The alert and horizon list are stored as JSONB.
type BacktestResultStore struct {
	pool *Pool
}

// NewBacktestResultStore creates a new BacktestResultStore.
func NewBacktestResultStore(pool *Pool) *BacktestResultStore {
	return &BacktestResultStore{pool: pool}
}

var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *BacktestResultStore) InsertBulk(ctx context.Context, results []*domain.BacktestResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO backtest_results (
			result_id, run_id, trigger_name, instrument_id, kind, direction,
			trigger_price, trigger_time, alert, horizons,
			mfe_pct, mae_pct, mfe_time, mae_time,
			hit_target_1pct, hit_target_2pct, hit_stop_loss, was_successful
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18
		)
	`

	for _, r := range results {
		if r == nil || r.ID == "" || r.Alert == nil {
			return storage.ErrInvalidInput
		}
		alertJSON, err := json.Marshal(r.Alert)
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		horizonsJSON, err := json.Marshal(r.Horizons)
		if err != nil {
			return fmt.Errorf("marshal horizons: %w", err)
		}

		_, err = tx.Exec(ctx, query,
			r.ID, r.RunID, r.Trigger, r.InstrumentID, string(r.Alert.Kind), string(r.Alert.Direction),
			r.TriggerPrice, r.TriggerTime, alertJSON, horizonsJSON,
			r.MaxFavorableExcursionPct, r.MaxAdverseExcursionPct, r.MaxFavorableTime, r.MaxAdverseTime,
			r.HitTarget1Pct, r.HitTarget2Pct, r.HitStopLoss, r.WasSuccessful,
		)
		if err != nil {
			return writeError("insert backtest result in bulk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves all results of a run, ordered by trigger_time ASC, result_id ASC.
func (s *BacktestResultStore) GetByRunID(ctx context.Context, runID string) ([]*domain.BacktestResult, error) {
	query := `
		SELECT
			result_id, run_id, trigger_name, instrument_id,
			trigger_price, trigger_time, alert, horizons,
			mfe_pct, mae_pct, mfe_time, mae_time,
			hit_target_1pct, hit_target_2pct, hit_stop_loss, was_successful
		FROM backtest_results
		WHERE run_id = $1
		ORDER BY trigger_time ASC, result_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get backtest results by run id: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func scanResults(rows pgx.Rows) ([]*domain.BacktestResult, error) {
	var results []*domain.BacktestResult

	for rows.Next() {
		var (
			r                       domain.BacktestResult
			alertJSON, horizonsJSON []byte
		)
		err := rows.Scan(
			&r.ID, &r.RunID, &r.Trigger, &r.InstrumentID,
			&r.TriggerPrice, &r.TriggerTime, &alertJSON, &horizonsJSON,
			&r.MaxFavorableExcursionPct, &r.MaxAdverseExcursionPct, &r.MaxFavorableTime, &r.MaxAdverseTime,
			&r.HitTarget1Pct, &r.HitTarget2Pct, &r.HitStopLoss, &r.WasSuccessful,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backtest result row: %w", err)
		}
		if err := json.Unmarshal(alertJSON, &r.Alert); err != nil {
			return nil, fmt.Errorf("unmarshal alert of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(horizonsJSON, &r.Horizons); err != nil {
			return nil, fmt.Errorf("unmarshal horizons of %s: %w", r.ID, err)
		}
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest result rows: %w", err)
	}
	return results, nil
}
