//go:build integration

package consent_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"obconsent/internal/consent"
	"obconsent/pkg/platform/sentinel"
	"obconsent/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *consent.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = consent.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "consents"))
}

func newStoredConsent(apiClientID, key string) *consent.Consent {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &consent.Consent{
		ID:              consent.IntentDomesticPayment.NewID(),
		APIClientID:     apiClientID,
		IntentType:      consent.IntentDomesticPayment,
		Status:          consent.StatusAwaitingAuthorisation,
		IdempotencyKey:  key,
		RequestObj:      []byte(`{"amount": "10.00", "currency": "GBP"}`),
		Version:         0,
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}
}

func (s *PostgresStoreSuite) TestInsertAndGet() {
	ctx := context.Background()
	created := newStoredConsent("tpp-1", "k1")

	_, err := s.store.Insert(ctx, created)
	s.Require().NoError(err)

	found, err := s.store.Get(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.APIClientID, found.APIClientID)
	s.Equal(created.IntentType, found.IntentType)
	s.Equal(created.Status, found.Status)
	s.Equal(created.Version, found.Version)
	s.JSONEq(string(created.RequestObj), string(found.RequestObj))
	s.WithinDuration(created.CreatedAt, found.CreatedAt, time.Millisecond)

	_, err = s.store.Get(ctx, consent.IntentDomesticPayment.NewID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindByIdempotencyKey() {
	ctx := context.Background()
	created := newStoredConsent("tpp-1", "k1")

	_, err := s.store.Insert(ctx, created)
	s.Require().NoError(err)

	found, err := s.store.FindByIdempotencyKey(ctx, "tpp-1", consent.IntentDomesticPayment, "k1")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)

	_, err = s.store.FindByIdempotencyKey(ctx, "tpp-2", consent.IntentDomesticPayment, "k1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByIdempotencyKey(ctx, "tpp-1", consent.IntentAccountAccess, "k1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestIdempotencyKeyUniqueness() {
	ctx := context.Background()

	_, err := s.store.Insert(ctx, newStoredConsent("tpp-1", "k1"))
	s.Require().NoError(err)

	s.Run("duplicate key for same client and type conflicts", func() {
		_, err := s.store.Insert(ctx, newStoredConsent("tpp-1", "k1"))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("same key for a different client is fine", func() {
		_, err := s.store.Insert(ctx, newStoredConsent("tpp-2", "k1"))
		s.Require().NoError(err)
	})
}

func (s *PostgresStoreSuite) TestUpdateIfVersion() {
	ctx := context.Background()
	created := newStoredConsent("tpp-1", "k1")
	_, err := s.store.Insert(ctx, created)
	s.Require().NoError(err)

	next := created.Clone()
	next.Status = consent.StatusAuthorised
	next.ResourceOwnerID = "alice"
	next.AuthorisedAccountIDs = []string{"acc-1", "acc-2"}
	next.AuthorisedDebtorAccountID = "acc-1"
	next.Version = 1
	next.StatusUpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	s.Run("applies when version matches", func() {
		updated, err := s.store.UpdateIfVersion(ctx, next, 0)
		s.Require().NoError(err)
		s.Equal(int64(1), updated.Version)

		found, err := s.store.Get(ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(consent.StatusAuthorised, found.Status)
		s.Equal([]string{"acc-1", "acc-2"}, found.AuthorisedAccountIDs)
		s.Equal("alice", found.ResourceOwnerID)
	})

	s.Run("stale version conflicts", func() {
		stale := next.Clone()
		stale.Version = 1
		_, err := s.store.UpdateIfVersion(ctx, stale, 0)
		s.Require().ErrorIs(err, sentinel.ErrVersionConflict)
	})

	s.Run("missing row is not found", func() {
		missing := newStoredConsent("tpp-1", "k-missing")
		_, err := s.store.UpdateIfVersion(ctx, missing, 0)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestConcurrentUpdateSingleWinner() {
	ctx := context.Background()
	created := newStoredConsent("tpp-1", "k1")
	_, err := s.store.Insert(ctx, created)
	s.Require().NoError(err)

	const writers = 8
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := created.Clone()
			next.Status = consent.StatusAuthorised
			next.Version = 1
			next.StatusUpdatedAt = time.Now().UTC()
			_, results[i] = s.store.UpdateIfVersion(ctx, next, 0)
		}()
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			s.Require().ErrorIs(err, sentinel.ErrVersionConflict)
			conflicts++
		}
	}
	s.Equal(1, wins)
	s.Equal(writers-1, conflicts)
}
