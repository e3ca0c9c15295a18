package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"obconsent/pkg/platform/sentinel"
)

const (
	consentKeyPrefix = "consent:id:"
	idemKeyPrefix    = "consent:idem:"
)

// RedisStore persists consents as JSON documents in Redis. Optimistic
// concurrency uses WATCH: the transactional pipeline is discarded whenever the
// consent key changes between the read and the write, which maps directly onto
// the version-conditioned update contract.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed consent store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func consentKey(id string) string {
	return consentKeyPrefix + id
}

func idemKey(apiClientID string, intentType IntentType, key string) string {
	return idemKeyPrefix + apiClientID + ":" + string(intentType) + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Consent, error) {
	raw, err := s.client.Get(ctx, consentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get consent: %w", err)
	}
	return unmarshalConsent(raw)
}

func (s *RedisStore) FindByIdempotencyKey(ctx context.Context, apiClientID string, intentType IntentType, key string) (*Consent, error) {
	id, err := s.client.Get(ctx, idemKey(apiClientID, intentType, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent by idempotency key: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Insert(ctx context.Context, consent *Consent) (*Consent, error) {
	payload, err := json.Marshal(consent)
	if err != nil {
		return nil, fmt.Errorf("marshal consent: %w", err)
	}

	cKey := consentKey(consent.ID)
	iKey := idemKey(consent.APIClientID, consent.IntentType, consent.IdempotencyKey)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := tx.Exists(ctx, cKey, iKey).Result()
		if err != nil {
			return err
		}
		if existing > 0 {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cKey, payload, 0)
			pipe.Set(ctx, iKey, consent.ID, 0)
			return nil
		})
		return err
	}, cKey, iKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, redis.TxFailedErr) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("insert consent: %w", err)
	}
	return consent.Clone(), nil
}

func (s *RedisStore) UpdateIfVersion(ctx context.Context, consent *Consent, expectedVersion int64) (*Consent, error) {
	payload, err := json.Marshal(consent)
	if err != nil {
		return nil, fmt.Errorf("marshal consent: %w", err)
	}

	cKey := consentKey(consent.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, cKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return sentinel.ErrNotFound
			}
			return err
		}
		current, err := unmarshalConsent(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return sentinel.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cKey, payload, 0)
			return nil
		})
		return err
	}, cKey)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrVersionConflict):
			return nil, err
		case errors.Is(err, redis.TxFailedErr):
			// The key changed under WATCH; the conditioned write lost the race.
			return nil, sentinel.ErrVersionConflict
		default:
			return nil, fmt.Errorf("update consent: %w", err)
		}
	}
	return consent.Clone(), nil
}

func unmarshalConsent(raw []byte) (*Consent, error) {
	var c Consent
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("unmarshal consent: %w", err)
	}
	return &c, nil
}
