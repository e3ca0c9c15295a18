package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"obconsent/pkg/platform/sentinel"
)

// PostgresStore persists consents in PostgreSQL. Optimistic concurrency is a
// conditioned UPDATE: the row is rewritten only while its version still equals
// the version the caller read, so a losing writer affects zero rows.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the consents table. Invoked by integration tests and by
// deployments that do not run migrations out of band.
const Schema = `
CREATE TABLE IF NOT EXISTS consents (
    id                        TEXT PRIMARY KEY,
    api_client_id             TEXT        NOT NULL,
    intent_type               TEXT        NOT NULL,
    status                    TEXT        NOT NULL,
    idempotency_key           TEXT        NOT NULL,
    request_obj               JSONB,
    resource_owner_id         TEXT        NOT NULL DEFAULT '',
    authorised_account_ids    TEXT[],
    authorised_debtor_account TEXT        NOT NULL DEFAULT '',
    rejected_by               TEXT        NOT NULL DEFAULT '',
    rejection_reason          TEXT        NOT NULL DEFAULT '',
    consumed_by               TEXT        NOT NULL DEFAULT '',
    version                   BIGINT      NOT NULL DEFAULT 0,
    created_at                TIMESTAMPTZ NOT NULL,
    status_updated_at         TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS consents_idempotency_idx
    ON consents (api_client_id, intent_type, idempotency_key);
`

// EnsureSchema applies the consents schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure consents schema: %w", err)
	}
	return nil
}

const consentColumns = `id, api_client_id, intent_type, status, idempotency_key, request_obj,
	resource_owner_id, authorised_account_ids, authorised_debtor_account,
	rejected_by, rejection_reason, consumed_by, version, created_at, status_updated_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Consent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE id = $1`, id)
	return scanConsent(row)
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, apiClientID string, intentType IntentType, key string) (*Consent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consents
		 WHERE api_client_id = $1 AND intent_type = $2 AND idempotency_key = $3`,
		apiClientID, string(intentType), key)
	return scanConsent(row)
}

func (s *PostgresStore) Insert(ctx context.Context, consent *Consent) (*Consent, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consents (`+consentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		consent.ID,
		consent.APIClientID,
		string(consent.IntentType),
		string(consent.Status),
		consent.IdempotencyKey,
		[]byte(consent.RequestObj),
		consent.ResourceOwnerID,
		pq.Array(consent.AuthorisedAccountIDs),
		consent.AuthorisedDebtorAccountID,
		consent.RejectedByResourceOwnerID,
		consent.RejectionReason,
		consent.ConsumedBy,
		consent.Version,
		consent.CreatedAt,
		consent.StatusUpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("insert consent: %w", err)
	}
	return consent.Clone(), nil
}

func (s *PostgresStore) UpdateIfVersion(ctx context.Context, consent *Consent, expectedVersion int64) (*Consent, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE consents SET
			status = $1,
			resource_owner_id = $2,
			authorised_account_ids = $3,
			authorised_debtor_account = $4,
			rejected_by = $5,
			rejection_reason = $6,
			consumed_by = $7,
			version = $8,
			status_updated_at = $9
		 WHERE id = $10 AND version = $11`,
		string(consent.Status),
		consent.ResourceOwnerID,
		pq.Array(consent.AuthorisedAccountIDs),
		consent.AuthorisedDebtorAccountID,
		consent.RejectedByResourceOwnerID,
		consent.RejectionReason,
		consent.ConsumedBy,
		consent.Version,
		consent.StatusUpdatedAt,
		consent.ID,
		expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update consent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update consent rows affected: %w", err)
	}
	if affected == 0 {
		// Disambiguate a lost race from a missing row.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM consents WHERE id = $1)`, consent.ID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("update consent existence check: %w", err)
		}
		if !exists {
			return nil, sentinel.ErrNotFound
		}
		return nil, sentinel.ErrVersionConflict
	}
	return consent.Clone(), nil
}

func scanConsent(row *sql.Row) (*Consent, error) {
	var c Consent
	var requestObj []byte
	var accountIDs pq.StringArray
	var intentType, status string
	err := row.Scan(
		&c.ID,
		&c.APIClientID,
		&intentType,
		&status,
		&c.IdempotencyKey,
		&requestObj,
		&c.ResourceOwnerID,
		&accountIDs,
		&c.AuthorisedDebtorAccountID,
		&c.RejectedByResourceOwnerID,
		&c.RejectionReason,
		&c.ConsumedBy,
		&c.Version,
		&c.CreatedAt,
		&c.StatusUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan consent: %w", err)
	}
	c.IntentType = IntentType(intentType)
	c.Status = Status(status)
	c.RequestObj = requestObj
	c.AuthorisedAccountIDs = accountIDs
	return &c, nil
}
