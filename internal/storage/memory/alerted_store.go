package memory

import (
	"context"
	"sync"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/storage"
)

// AlertedStore is an in-memory implementation of storage.AlertedStore.
type AlertedStore struct {
	mu   sync.Mutex
	keys map[domain.AlertKey]struct{}
}

// NewAlertedStore creates a new in-memory alerted store.
func NewAlertedStore() *AlertedStore {
	return &AlertedStore{
		keys: make(map[domain.AlertKey]struct{}),
	}
}

// MarkIfAbsent records the key and reports whether it was newly added.
func (s *AlertedStore) MarkIfAbsent(_ context.Context, key domain.AlertKey) (bool, error) {
	if key.InstrumentID == "" || key.Kind == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key]; exists {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

// Contains reports whether the key has been recorded.
func (s *AlertedStore) Contains(_ context.Context, key domain.AlertKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.keys[key]
	return exists, nil
}

var _ storage.AlertedStore = (*AlertedStore)(nil)
