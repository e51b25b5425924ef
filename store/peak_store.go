package store

import (
	"context"
	"fmt"
	"sync"
)

// PeakStore implements peak.Store on top of a Store, for deployments without
// a remote peak endpoint. Updates are serialized so concurrent observers
// never lower the stored value.
type PeakStore struct {
	kv Store
	mu sync.Mutex
}

// NewPeakStore creates a PeakStore backed by kv.
func NewPeakStore(kv Store) *PeakStore {
	return &PeakStore{kv: kv}
}

// Current returns the stored peak, or zero if none has been recorded.
func (s *PeakStore) Current(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// UpdateIfGreater raises the stored peak to candidate when it is higher.
func (s *PeakStore) UpdateIfGreater(ctx context.Context, candidate int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return 0, err
	}
	if candidate <= current {
		return current, nil
	}
	if err := s.kv.Put(KeyPeak, candidate); err != nil {
		return 0, fmt.Errorf("storing peak: %w", err)
	}
	return candidate, nil
}

// Reset stores a peak of zero.
func (s *PeakStore) Reset(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Put(KeyPeak, 0); err != nil {
		return 0, fmt.Errorf("resetting peak: %w", err)
	}
	return 0, nil
}

func (s *PeakStore) load() (int, error) {
	var peak int
	if _, err := s.kv.Get(KeyPeak, &peak); err != nil {
		return 0, fmt.Errorf("loading peak: %w", err)
	}
	return peak, nil
}
