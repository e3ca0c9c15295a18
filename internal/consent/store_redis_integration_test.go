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

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *consent.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = consent.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestInsertAndLookups() {
	ctx := context.Background()
	created := newStoredConsent("tpp-1", "k1")

	_, err := s.store.Insert(ctx, created)
	s.Require().NoError(err)

	found, err := s.store.Get(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.APIClientID, found.APIClientID)
	s.Equal(created.Status, found.Status)
	s.JSONEq(string(created.RequestObj), string(found.RequestObj))

	byKey, err := s.store.FindByIdempotencyKey(ctx, "tpp-1", consent.IntentDomesticPayment, "k1")
	s.Require().NoError(err)
	s.Equal(created.ID, byKey.ID)

	_, err = s.store.Get(ctx, consent.IntentDomesticPayment.NewID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByIdempotencyKey(ctx, "tpp-2", consent.IntentDomesticPayment, "k1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestInsertConflicts() {
	ctx := context.Background()

	_, err := s.store.Insert(ctx, newStoredConsent("tpp-1", "k1"))
	s.Require().NoError(err)

	_, err = s.store.Insert(ctx, newStoredConsent("tpp-1", "k1"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.Insert(ctx, newStoredConsent("tpp-2", "k1"))
	s.Require().NoError(err)
}

func (s *RedisStoreSuite) TestUpdateIfVersion() {
	ctx := context.Background()
	created := newStoredConsent("tpp-1", "k1")
	_, err := s.store.Insert(ctx, created)
	s.Require().NoError(err)

	next := created.Clone()
	next.Status = consent.StatusAuthorised
	next.ResourceOwnerID = "alice"
	next.Version = 1
	next.StatusUpdatedAt = time.Now().UTC()

	updated, err := s.store.UpdateIfVersion(ctx, next, 0)
	s.Require().NoError(err)
	s.Equal(int64(1), updated.Version)

	found, err := s.store.Get(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(consent.StatusAuthorised, found.Status)

	s.Run("stale version conflicts", func() {
		stale := created.Clone()
		stale.Status = consent.StatusRejected
		stale.Version = 1
		_, err := s.store.UpdateIfVersion(ctx, stale, 0)
		s.Require().ErrorIs(err, sentinel.ErrVersionConflict)
	})

	s.Run("missing consent is not found", func() {
		missing := newStoredConsent("tpp-1", "k-missing")
		_, err := s.store.UpdateIfVersion(ctx, missing, 0)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *RedisStoreSuite) TestConcurrentUpdateSingleWinner() {
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

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		s.Require().ErrorIs(err, sentinel.ErrVersionConflict)
	}
	s.Equal(1, wins)
}
