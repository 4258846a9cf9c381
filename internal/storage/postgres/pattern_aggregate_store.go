package postgres

import (
	"context"
	"fmt"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// PatternAggregateStore implements storage.PatternAggregateStore using PostgreSQL.
type PatternAggregateStore struct {
	pool *Pool
}

// NewPatternAggregateStore creates a new PatternAggregateStore.
func NewPatternAggregateStore(pool *Pool) *PatternAggregateStore {
	return &PatternAggregateStore{pool: pool}
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

	query := `INSERT INTO pattern_aggregates (` + aggregateColumns + `) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16,
		$17, $18, $19,
		$20, $21, $22, $23, $24,
		$25
	)`

	_, err := s.pool.Exec(ctx, query,
		a.RunID, string(a.Kind), a.Trigger, string(a.Direction),
		a.TotalAlerts, a.TotalInstruments, a.Scored, a.Wins, a.Losses, a.WinRate,
		a.ReturnMean, a.ReturnMedian, a.ReturnP10, a.ReturnP25, a.ReturnP75, a.ReturnP90,
		a.ReturnMin, a.ReturnMax, a.ReturnStddev,
		a.MFEMean, a.MAEMean, a.HitTarget1Rate, a.HitTarget2Rate, a.StopLossRate,
		a.MaxConsecutiveLosses,
	)
	if err != nil {
		return writeError("insert pattern aggregate", err)
	}
	return nil
}

// GetByRunID retrieves all aggregates of a run, ordered by kind ASC.
func (s *PatternAggregateStore) GetByRunID(ctx context.Context, runID string) ([]*domain.PatternAggregate, error) {
	query := `SELECT ` + aggregateColumns + `
		FROM pattern_aggregates
		WHERE run_id = $1
		ORDER BY kind ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get pattern aggregates by run id: %w", err)
	}
	defer rows.Close()

	var out []*domain.PatternAggregate
	for rows.Next() {
		var (
			a               domain.PatternAggregate
			kind, direction string
		)
		err := rows.Scan(
			&a.RunID, &kind, &a.Trigger, &direction,
			&a.TotalAlerts, &a.TotalInstruments, &a.Scored, &a.Wins, &a.Losses, &a.WinRate,
			&a.ReturnMean, &a.ReturnMedian, &a.ReturnP10, &a.ReturnP25, &a.ReturnP75, &a.ReturnP90,
			&a.ReturnMin, &a.ReturnMax, &a.ReturnStddev,
			&a.MFEMean, &a.MAEMean, &a.HitTarget1Rate, &a.HitTarget2Rate, &a.StopLossRate,
			&a.MaxConsecutiveLosses,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pattern aggregate row: %w", err)
		}
		a.Kind = domain.PatternKind(kind)
		a.Direction = domain.Signal(direction)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pattern aggregate rows: %w", err)
	}
	return out, nil
}
