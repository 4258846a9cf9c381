package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

var _ storage.AlertStore = (*AlertStore)(nil)

const alertColumns = `
	alert_id, instrument_id, kind, direction, priority,
	trigger_column_index, trigger_price, trigger_time,
	level, supporting_levels, trend_ema, trend_close, trend_position,
	target, metrics
`

// Insert adds a new alert. Returns ErrDuplicateKey if alert_id exists.
func (s *AlertStore) Insert(ctx context.Context, m *domain.PatternMatch) error {
	if m == nil || m.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `INSERT INTO pattern_alerts (` + alertColumns + `) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8,
		$9, $10, $11, $12, $13,
		$14, $15
	)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.InstrumentID, string(m.Kind), string(m.Direction), m.Priority,
		m.TriggerColumnIndex, m.TriggerPrice, m.TriggerTime,
		m.Level, m.SupportingLevels, m.Trend.EMA, m.Trend.Close, string(m.Trend.Position),
		m.Target, m.Metrics,
	)
	if err != nil {
		return writeError("insert alert", err)
	}
	return nil
}

// GetByInstrument retrieves all alerts for an instrument, ordered by trigger_time ASC.
func (s *AlertStore) GetByInstrument(ctx context.Context, instrumentID string) ([]*domain.PatternMatch, error) {
	query := `SELECT ` + alertColumns + `
		FROM pattern_alerts
		WHERE instrument_id = $1
		ORDER BY trigger_time ASC, alert_id ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("get alerts by instrument: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetByTimeRange retrieves alerts triggered within [start, end] (inclusive).
func (s *AlertStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PatternMatch, error) {
	query := `SELECT ` + alertColumns + `
		FROM pattern_alerts
		WHERE trigger_time >= $1 AND trigger_time <= $2
		ORDER BY trigger_time ASC, alert_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get alerts by time range: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func scanAlerts(rows pgx.Rows) ([]*domain.PatternMatch, error) {
	var alerts []*domain.PatternMatch

	for rows.Next() {
		var (
			m                         domain.PatternMatch
			kind, direction, position string
		)
		err := rows.Scan(
			&m.ID, &m.InstrumentID, &kind, &direction, &m.Priority,
			&m.TriggerColumnIndex, &m.TriggerPrice, &m.TriggerTime,
			&m.Level, &m.SupportingLevels, &m.Trend.EMA, &m.Trend.Close, &position,
			&m.Target, &m.Metrics,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		m.Kind = domain.PatternKind(kind)
		m.Direction = domain.Signal(direction)
		m.Trend.Position = domain.TrendPosition(position)
		alerts = append(alerts, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}
	return alerts, nil
}
