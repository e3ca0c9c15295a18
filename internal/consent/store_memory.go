package consent

import (
	"context"
	"sync"

	"obconsent/pkg/platform/sentinel"
)

// InMemoryStore is a mutex-guarded map store for tests and single-process use.
// The conditioned update runs under the write lock, so it is linearisable the
// same way the SQL implementation's conditioned UPDATE is.
type InMemoryStore struct {
	mu        sync.RWMutex
	consents  map[string]*Consent
	byIdemKey map[string]string // (apiClientID|intentType|key) -> consent id
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		consents:  make(map[string]*Consent),
		byIdemKey: make(map[string]string),
	}
}

func idemIndexKey(apiClientID string, intentType IntentType, key string) string {
	return apiClientID + "|" + string(intentType) + "|" + key
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	consent, ok := s.consents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return consent.Clone(), nil
}

func (s *InMemoryStore) FindByIdempotencyKey(_ context.Context, apiClientID string, intentType IntentType, key string) (*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdemKey[idemIndexKey(apiClientID, intentType, key)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	consent, ok := s.consents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return consent.Clone(), nil
}

func (s *InMemoryStore) Insert(_ context.Context, consent *Consent) (*Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.consents[consent.ID]; exists {
		return nil, sentinel.ErrConflict
	}
	idemKey := idemIndexKey(consent.APIClientID, consent.IntentType, consent.IdempotencyKey)
	if _, exists := s.byIdemKey[idemKey]; exists {
		return nil, sentinel.ErrConflict
	}

	stored := consent.Clone()
	s.consents[stored.ID] = stored
	s.byIdemKey[idemKey] = stored.ID
	return stored.Clone(), nil
}

func (s *InMemoryStore) UpdateIfVersion(_ context.Context, consent *Consent, expectedVersion int64) (*Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.consents[consent.ID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, sentinel.ErrVersionConflict
	}

	stored := consent.Clone()
	s.consents[stored.ID] = stored
	return stored.Clone(), nil
}
