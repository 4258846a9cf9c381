package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by instrument_id|timestamp
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

func candleKey(instrumentID string, ts int64) string {
	return fmt.Sprintf("%s|%d", instrumentID, ts)
}

// InsertBulk adds multiple candles atomically. Fails entire batch on any duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(candles))

	// First pass: check for duplicates (existing + intra-batch)
	for _, c := range candles {
		if c == nil || c.InstrumentID == "" {
			return storage.ErrInvalidInput
		}
		key := candleKey(c.InstrumentID, c.Timestamp)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, c := range candles {
		candleCopy := *c
		s.data[candleKey(c.InstrumentID, c.Timestamp)] = &candleCopy
	}

	return nil
}

// GetByTimeRange retrieves candles for an instrument within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(_ context.Context, instrumentID string, start, end int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.InstrumentID == instrumentID && c.Timestamp >= start && c.Timestamp <= end {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// ListInstruments returns all instrument IDs with at least one candle.
func (s *CandleStore) ListInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range s.data {
		seen[c.InstrumentID] = struct{}{}
	}

	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)

	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
