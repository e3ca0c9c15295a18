package consent

import "context"

// Store is the durable keyed storage consumed by the consent service. It is
// interface-driven so the lifecycle logic stays testable and the persistence
// engine (memory, PostgreSQL, Redis) can be swapped without rewiring business
// code.
//
// Implementations signal facts with pkg/platform/sentinel errors:
//   - Get / FindByIdempotencyKey return sentinel.ErrNotFound when absent.
//   - Insert returns sentinel.ErrConflict when the id already exists.
//   - UpdateIfVersion returns sentinel.ErrVersionConflict when the stored
//     version no longer matches expectedVersion, and sentinel.ErrNotFound when
//     the consent disappeared. On success the stored version is the updated
//     consent's Version field.
//
// Stores hand out deep copies; callers never observe later mutations through
// a returned pointer.
type Store interface {
	Get(ctx context.Context, id string) (*Consent, error)
	FindByIdempotencyKey(ctx context.Context, apiClientID string, intentType IntentType, key string) (*Consent, error)
	Insert(ctx context.Context, consent *Consent) (*Consent, error)
	UpdateIfVersion(ctx context.Context, consent *Consent, expectedVersion int64) (*Consent, error)
}
