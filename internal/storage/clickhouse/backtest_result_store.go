package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// BacktestResultStore implements storage.BacktestResultStore using ClickHouse.
// Default-horizon returns get their own columns for analytical queries; the
// full horizon list and the alert are kept as JSON.
type BacktestResultStore struct {
	conn *Conn
}

// NewBacktestResultStore creates a new BacktestResultStore.
func NewBacktestResultStore(conn *Conn) *BacktestResultStore {
	return &BacktestResultStore{conn: conn}
}

var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)

// InsertBulk adds multiple results. Fails entire batch on any duplicate ID.
func (s *BacktestResultStore) InsertBulk(ctx context.Context, results []*domain.BacktestResult) error {
	if len(results) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if r == nil || r.ID == "" || r.Alert == nil {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[r.ID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[r.ID] = struct{}{}
	}

	for _, r := range results {
		exists, err := s.exists(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO backtest_results (
			result_id, run_id, trigger_name, instrument_id, kind, direction,
			trigger_price, trigger_time, alert_json,
			return_5m, return_15m, return_30m, return_1h, return_2h, horizons_json,
			mfe_pct, mae_pct, mfe_time, mae_time,
			hit_target_1pct, hit_target_2pct, hit_stop_loss, was_successful
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range results {
		alertJSON, err := json.Marshal(r.Alert)
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		horizonsJSON, err := json.Marshal(r.Horizons)
		if err != nil {
			return fmt.Errorf("marshal horizons: %w", err)
		}

		err = batch.Append(
			r.ID, r.RunID, r.Trigger, r.InstrumentID, string(r.Alert.Kind), string(r.Alert.Direction),
			r.TriggerPrice, uint64(r.TriggerTime), string(alertJSON),
			r.ReturnAt("5m"), r.ReturnAt("15m"), r.ReturnAt("30m"), r.ReturnAt("1h"), r.ReturnAt("2h"), string(horizonsJSON),
			r.MaxFavorableExcursionPct, r.MaxAdverseExcursionPct, toUint64Ptr(r.MaxFavorableTime), toUint64Ptr(r.MaxAdverseTime),
			r.HitTarget1Pct, r.HitTarget2Pct, r.HitStopLoss, r.WasSuccessful,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves all results of a run, ordered by trigger_time ASC, result_id ASC.
func (s *BacktestResultStore) GetByRunID(ctx context.Context, runID string) ([]*domain.BacktestResult, error) {
	query := `
		SELECT
			result_id, run_id, trigger_name, instrument_id,
			trigger_price, trigger_time, alert_json, horizons_json,
			mfe_pct, mae_pct, mfe_time, mae_time,
			hit_target_1pct, hit_target_2pct, hit_stop_loss, was_successful
		FROM backtest_results FINAL
		WHERE run_id = ?
		ORDER BY trigger_time ASC, result_id ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query backtest results by run id: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func (s *BacktestResultStore) exists(ctx context.Context, resultID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM backtest_results WHERE result_id = ?`, resultID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanResults(rows chRows) ([]*domain.BacktestResult, error) {
	var results []*domain.BacktestResult

	for rows.Next() {
		var (
			r                       domain.BacktestResult
			triggerTime             uint64
			alertJSON, horizonsJSON string
			mfeTime, maeTime        *uint64
		)
		err := rows.Scan(
			&r.ID, &r.RunID, &r.Trigger, &r.InstrumentID,
			&r.TriggerPrice, &triggerTime, &alertJSON, &horizonsJSON,
			&r.MaxFavorableExcursionPct, &r.MaxAdverseExcursionPct, &mfeTime, &maeTime,
			&r.HitTarget1Pct, &r.HitTarget2Pct, &r.HitStopLoss, &r.WasSuccessful,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backtest result row: %w", err)
		}
		r.TriggerTime = int64(triggerTime)
		r.MaxFavorableTime = toInt64Ptr(mfeTime)
		r.MaxAdverseTime = toInt64Ptr(maeTime)

		if err := json.Unmarshal([]byte(alertJSON), &r.Alert); err != nil {
			return nil, fmt.Errorf("unmarshal alert of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(horizonsJSON), &r.Horizons); err != nil {
			return nil, fmt.Errorf("unmarshal horizons of %s: %w", r.ID, err)
		}
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest result rows: %w", err)
	}
	return results, nil
}

func toUint64Ptr(v *int64) *uint64 {
	if v == nil {
		return nil
	}
	u := uint64(*v)
	return &u
}

func toInt64Ptr(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}
