package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps events in an append-only slice guarded by a mutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByConsent(_ context.Context, consentID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.ConsentID == consentID {
			out = append(out, e)
		}
	}
	return out, nil
}
