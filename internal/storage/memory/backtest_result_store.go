package memory

import (
	"context"
	"sort"
	"sync"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// BacktestResultStore is an in-memory implementation of storage.BacktestResultStore.
type BacktestResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BacktestResult // keyed by result ID
}

// NewBacktestResultStore creates a new in-memory backtest result store.
func NewBacktestResultStore() *BacktestResultStore {
	return &BacktestResultStore{
		data: make(map[string]*domain.BacktestResult),
	}
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *BacktestResultStore) InsertBulk(_ context.Context, results []*domain.BacktestResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(results))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range results {
		if r == nil || r.ID == "" || r.RunID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.ID] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range results {
		s.data[r.ID] = cloneResult(r)
	}

	return nil
}

// GetByRunID retrieves all results of a run, ordered by trigger time then ID.
func (s *BacktestResultStore) GetByRunID(_ context.Context, runID string) ([]*domain.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BacktestResult
	for _, r := range s.data {
		if r.RunID == runID {
			result = append(result, cloneResult(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TriggerTime != result[j].TriggerTime {
			return result[i].TriggerTime < result[j].TriggerTime
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func cloneResult(r *domain.BacktestResult) *domain.BacktestResult {
	c := *r
	c.Alert = cloneMatch(r.Alert)
	if r.Horizons != nil {
		c.Horizons = append([]domain.HorizonResult(nil), r.Horizons...)
	}
	return &c
}

var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)
