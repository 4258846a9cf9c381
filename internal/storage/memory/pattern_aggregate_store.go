package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// PatternAggregateStore is an in-memory implementation of storage.PatternAggregateStore.
type PatternAggregateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PatternAggregate // keyed by run_id|kind
}

// NewPatternAggregateStore creates a new in-memory pattern aggregate store.
func NewPatternAggregateStore() *PatternAggregateStore {
	return &PatternAggregateStore{
		data: make(map[string]*domain.PatternAggregate),
	}
}

func aggregateKey(runID string, kind domain.PatternKind) string {
	return fmt.Sprintf("%s|%s", runID, kind)
}

// Insert adds a new aggregate. Returns ErrDuplicateKey if key exists.
func (s *PatternAggregateStore) Insert(_ context.Context, a *domain.PatternAggregate) error {
	if a == nil || a.RunID == "" || a.Kind == "" {
		return storage.ErrInvalidInput
	}

	key := aggregateKey(a.RunID, a.Kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	aggCopy := *a
	s.data[key] = &aggCopy
	return nil
}

// GetByRunID retrieves all aggregates of a run, ordered by kind.
func (s *PatternAggregateStore) GetByRunID(_ context.Context, runID string) ([]*domain.PatternAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PatternAggregate
	for _, a := range s.data {
		if a.RunID == runID {
			aggCopy := *a
			result = append(result, &aggCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})

	return result, nil
}

var _ storage.PatternAggregateStore = (*PatternAggregateStore)(nil)
