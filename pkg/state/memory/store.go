package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/state/outcome"
)

// Store is a process-local state store. Nothing survives a restart, so it is
// only meant for tests and dry runs.
type Store struct {
	mu        sync.RWMutex
	watermark *time.Time
	outcomes  map[string]outcome.Outcome
}

func NewStore() *Store {
	return &Store{
		outcomes: make(map[string]outcome.Outcome),
	}
}

func (s *Store) GetWatermark(ctx context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.watermark == nil {
		return time.Time{}, false, nil
	}

	return *s.watermark, true, nil
}

func (s *Store) SetWatermark(ctx context.Context, wm time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wm = wm.UTC()
	s.watermark = &wm
	return nil
}

func (s *Store) GetOutcome(ctx context.Context, identifier string) (outcome.Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outcomes[identifier]
	if !ok {
		return "", false, nil
	}

	return o.Status, true, nil
}

func (s *Store) SetOutcome(ctx context.Context, o *outcome.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes[o.Identifier] = *o
	return nil
}

// Outcome returns the full stored outcome of a record.
func (s *Store) Outcome(identifier string) (outcome.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outcomes[identifier]
	return o, ok
}

func (s *Store) Dispose(ctx context.Context) error {
	return nil
}
