package pattern

import (
	"sync"

	"pnf-signal-lab/internal/domain"
)

// AlertedSet holds the one-shot keys already emitted in a run.
type AlertedSet interface {
	Contains(key domain.AlertKey) bool
	Add(key domain.AlertKey)
}

// MemoryAlertedSet is an in-memory AlertedSet, safe for concurrent use.
type MemoryAlertedSet struct {
	mu   sync.RWMutex
	keys map[domain.AlertKey]struct{}
}

// NewAlertedSet creates an empty in-memory set.
func NewAlertedSet() *MemoryAlertedSet {
	return &MemoryAlertedSet{keys: make(map[domain.AlertKey]struct{})}
}

// Contains reports whether key was added.
func (s *MemoryAlertedSet) Contains(key domain.AlertKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Add records key.
func (s *MemoryAlertedSet) Add(key domain.AlertKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
}

// Len returns the number of keys.
func (s *MemoryAlertedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

var _ AlertedSet = (*MemoryAlertedSet)(nil)
