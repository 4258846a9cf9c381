package clickhouse

import (
	"context"
	"fmt"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// PatternAggregateStore implements storage.PatternAggregateStore using ClickHouse.
type PatternAggregateStore struct {
	conn *Conn
}

// NewPatternAggregateStore creates a new PatternAggregateStore.
func NewPatternAggregateStore(conn *Conn) *PatternAggregateStore {
	return &PatternAggregateStore{conn: conn}
}

var _ storage.PatternAggregateStore = (*PatternAggregateStore)(nil)

const aggregateColumns = `
	run_id, kind, trigger_name, direction,
	total_alerts, total_instruments, scored, wins, losses, win_rate,
	return_mean, return_median, return_p10, return_p25, return_p75, return_p90,
	return_min, return_max, return_stddev,
	mfe_mean, mae_mean, hit_target_1_rate, hit_target_2_rate, stop_loss_rate,
	max_consecutive_losses
`

// Insert adds a new aggregate. Returns ErrDuplicateKey if (run_id, kind) exists.
func (s *PatternAggregateStore) Insert(ctx context.Context, a *domain.PatternAggregate) error {
	if a == nil || a.RunID == "" || a.Kind == "" {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would replace silently; keep append-only semantics
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM pattern_aggregates FINAL WHERE run_id = ? AND kind = ?
	`, a.RunID, string(a.Kind)).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	query := `INSERT INTO pattern_aggregates (` + aggregateColumns + `) VALUES (
		?, ?, ?, ?,
		?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?, ?,
		?, ?, ?,
		?, ?, ?, ?, ?,
		?
	)`

	err = s.conn.Exec(ctx, query,
		a.RunID, string(a.Kind), a.Trigger, string(a.Direction),
		uint32(a.TotalAlerts), uint32(a.TotalInstruments), uint32(a.Scored), uint32(a.Wins), uint32(a.Losses), a.WinRate,
		a.ReturnMean, a.ReturnMedian, a.ReturnP10, a.ReturnP25, a.ReturnP75, a.ReturnP90,
		a.ReturnMin, a.ReturnMax, a.ReturnStddev,
		a.MFEMean, a.MAEMean, a.HitTarget1Rate, a.HitTarget2Rate, a.StopLossRate,
		uint32(a.MaxConsecutiveLosses),
	)
	if err != nil {
		return fmt.Errorf("insert pattern aggregate: %w", err)
	}
	return nil
}

// GetByRunID retrieves all aggregates of a run, ordered by kind ASC.
func (s *PatternAggregateStore) GetByRunID(ctx context.Context, runID string) ([]*domain.PatternAggregate, error) {
	query := `SELECT ` + aggregateColumns + `
		FROM pattern_aggregates FINAL
		WHERE run_id = ?
		ORDER BY kind ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query pattern aggregates by run id: %w", err)
	}
	defer rows.Close()

	return scanAggregates(rows)
}

func scanAggregates(rows chRows) ([]*domain.PatternAggregate, error) {
	var out []*domain.PatternAggregate

	for rows.Next() {
		var (
			a               domain.PatternAggregate
			kind, direction string
			counts          [6]uint32
		)
		err := rows.Scan(
			&a.RunID, &kind, &a.Trigger, &direction,
			&counts[0], &counts[1], &counts[2], &counts[3], &counts[4], &a.WinRate,
			&a.ReturnMean, &a.ReturnMedian, &a.ReturnP10, &a.ReturnP25, &a.ReturnP75, &a.ReturnP90,
			&a.ReturnMin, &a.ReturnMax, &a.ReturnStddev,
			&a.MFEMean, &a.MAEMean, &a.HitTarget1Rate, &a.HitTarget2Rate, &a.StopLossRate,
			&counts[5],
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		a.Kind = domain.PatternKind(kind)
		a.Direction = domain.Signal(direction)
		a.TotalAlerts = int(counts[0])
		a.TotalInstruments = int(counts[1])
		a.Scored = int(counts[2])
		a.Wins = int(counts[3])
		a.Losses = int(counts[4])
		a.MaxConsecutiveLosses = int(counts[5])
		out = append(out, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return out, nil
}
