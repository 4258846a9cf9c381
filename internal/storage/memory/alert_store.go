package memory

import (
	"context"
	"sort"
	"sync"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PatternMatch // keyed by alert ID
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		data: make(map[string]*domain.PatternMatch),
	}
}

// Insert adds a new alert. Returns ErrDuplicateKey if the ID exists.
func (s *AlertStore) Insert(_ context.Context, m *domain.PatternMatch) error {
	if m == nil || m.ID == "" || m.InstrumentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[m.ID] = cloneMatch(m)
	return nil
}

// GetByInstrument retrieves all alerts for an instrument, ordered by trigger time.
func (s *AlertStore) GetByInstrument(_ context.Context, instrumentID string) ([]*domain.PatternMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PatternMatch
	for _, m := range s.data {
		if m.InstrumentID == instrumentID {
			result = append(result, cloneMatch(m))
		}
	}
	sortMatches(result)

	return result, nil
}

// GetByTimeRange retrieves alerts triggered within [start, end] (inclusive).
func (s *AlertStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.PatternMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PatternMatch
	for _, m := range s.data {
		if m.TriggerTime >= start && m.TriggerTime <= end {
			result = append(result, cloneMatch(m))
		}
	}
	sortMatches(result)

	return result, nil
}

func sortMatches(ms []*domain.PatternMatch) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].TriggerTime != ms[j].TriggerTime {
			return ms[i].TriggerTime < ms[j].TriggerTime
		}
		return ms[i].ID < ms[j].ID
	})
}

// cloneMatch copies a match including its slices and maps.
func cloneMatch(m *domain.PatternMatch) *domain.PatternMatch {
	if m == nil {
		return nil
	}
	c := *m
	if m.SupportingLevels != nil {
		c.SupportingLevels = append([]float64(nil), m.SupportingLevels...)
	}
	if m.Metrics != nil {
		c.Metrics = make(map[string]float64, len(m.Metrics))
		for k, v := range m.Metrics {
			c.Metrics[k] = v
		}
	}
	if m.Target != nil {
		v := *m.Target
		c.Target = &v
	}
	if m.Trend.EMA != nil {
		v := *m.Trend.EMA
		c.Trend.EMA = &v
	}
	return &c
}

var _ storage.AlertStore = (*AlertStore)(nil)
