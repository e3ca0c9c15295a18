package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"obconsent/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newConsent(apiClientID, idempotencyKey string) *Consent {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Consent{
		ID:              IntentDomesticPayment.NewID(),
		APIClientID:     apiClientID,
		IntentType:      IntentDomesticPayment,
		Status:          StatusAwaitingAuthorisation,
		IdempotencyKey:  idempotencyKey,
		RequestObj:      []byte(`{"amount":"10.00"}`),
		Version:         0,
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}
}

func (s *MemoryStoreSuite) TestInsertAndLookups() {
	s.Run("inserts and gets by id", func() {
		created := s.newConsent("tpp-1", "k1")
		stored, err := s.store.Insert(s.ctx, created)
		s.Require().NoError(err)
		s.Equal(created.ID, stored.ID)

		found, err := s.store.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(created.APIClientID, found.APIClientID)
		s.Equal(StatusAwaitingAuthorisation, found.Status)
	})

	s.Run("finds by idempotency key scoped to client and type", func() {
		created := s.newConsent("tpp-2", "k2")
		_, err := s.store.Insert(s.ctx, created)
		s.Require().NoError(err)

		found, err := s.store.FindByIdempotencyKey(s.ctx, "tpp-2", IntentDomesticPayment, "k2")
		s.Require().NoError(err)
		s.Equal(created.ID, found.ID)

		_, err = s.store.FindByIdempotencyKey(s.ctx, "tpp-other", IntentDomesticPayment, "k2")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.FindByIdempotencyKey(s.ctx, "tpp-2", IntentAccountAccess, "k2")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.Get(s.ctx, IntentDomesticPayment.NewID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestInsertConflicts() {
	created := s.newConsent("tpp-1", "k1")
	_, err := s.store.Insert(s.ctx, created)
	s.Require().NoError(err)

	s.Run("rejects duplicate id", func() {
		_, err := s.store.Insert(s.ctx, created.Clone())
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("rejects duplicate idempotency key for same client and type", func() {
		duplicate := s.newConsent("tpp-1", "k1")
		_, err := s.store.Insert(s.ctx, duplicate)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("allows same key for a different client", func() {
		other := s.newConsent("tpp-2", "k1")
		_, err := s.store.Insert(s.ctx, other)
		s.Require().NoError(err)
	})
}

func (s *MemoryStoreSuite) TestUpdateIfVersion() {
	created := s.newConsent("tpp-1", "k1")
	_, err := s.store.Insert(s.ctx, created)
	s.Require().NoError(err)

	s.Run("applies update when version matches", func() {
		next := created.Clone()
		next.Status = StatusAuthorised
		next.Version = 1

		updated, err := s.store.UpdateIfVersion(s.ctx, next, 0)
		s.Require().NoError(err)
		s.Equal(StatusAuthorised, updated.Status)
		s.Equal(int64(1), updated.Version)
	})

	s.Run("rejects stale version", func() {
		stale := created.Clone()
		stale.Status = StatusRejected
		stale.Version = 1

		_, err := s.store.UpdateIfVersion(s.ctx, stale, 0)
		s.Require().ErrorIs(err, sentinel.ErrVersionConflict)
	})

	s.Run("rejects unknown consent", func() {
		missing := s.newConsent("tpp-1", "k-missing")
		_, err := s.store.UpdateIfVersion(s.ctx, missing, 0)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestSnapshotIsolation() {
	created := s.newConsent("tpp-1", "k1")
	stored, err := s.store.Insert(s.ctx, created)
	s.Require().NoError(err)

	// Mutating a returned snapshot must not leak into the store.
	stored.Status = StatusConsumed
	stored.RequestObj[0] = 'X'

	found, err := s.store.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(StatusAwaitingAuthorisation, found.Status)
	s.Equal(byte('{'), found.RequestObj[0])
}
