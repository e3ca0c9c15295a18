// Package service orchestrates the consent lifecycle: idempotent creation,
// tenant-scoped reads, and the signed-decision operations that move a consent
// through its state machine under optimistic concurrency.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"obconsent/internal/assertion"
	"obconsent/internal/audit"
	"obconsent/internal/consent"
	"obconsent/internal/consent/metrics"
	dErrors "obconsent/pkg/domain-errors"
	"obconsent/pkg/platform/sentinel"
	"obconsent/pkg/requestcontext"
)

// Service is the consent façade. It is stateless and safe for arbitrary
// concurrent invocation; no in-process lock is held across a storage call.
type Service struct {
	store   consent.Store
	codec   *assertion.Codec
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Publisher
	tracer  trace.Tracer

	// consumerEq decides whether a repeated consume is the same consumer
	// re-delivering (idempotent) or a different identity replaying (error).
	consumerEq func(existing, incoming string) bool
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches consent metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPublisher attaches an audit publisher for accepted transitions.
func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

// WithConsumerIdentityEquality overrides the consumer identity predicate used
// to classify repeated consume deliveries. Default is exact string equality.
func WithConsumerIdentityEquality(eq func(existing, incoming string) bool) Option {
	return func(s *Service) { s.consumerEq = eq }
}

// New constructs the consent service.
func New(store consent.Store, codec *assertion.Codec, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		codec:      codec,
		logger:     logger,
		tracer:     otel.Tracer("obconsent/consent"),
		consumerEq: func(existing, incoming string) bool { return existing == incoming },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateConsentRequest carries the caller-controlled create fields. RequestObj
// is the original Open Banking payload, opaque to the lifecycle logic.
type CreateConsentRequest struct {
	APIClientID    string
	IntentType     consent.IntentType
	IdempotencyKey string
	RequestObj     json.RawMessage
}

// DecisionResult is what a completed authorise/reject hands back: the updated
// consent snapshot plus the signed outbound assertion the decisioning
// component forwards to the original requester.
type DecisionResult struct {
	Consent      *consent.Consent
	AssertionJWT string
}

// AuthoriseConsentArgs carries an inbound authorise decision. ConsentJWT is
// the signed request assertion produced upstream; the tenant identity is taken
// from its verified claims, never from the unauthenticated payload.
type AuthoriseConsentArgs struct {
	ConsentID            string
	ResourceOwnerID      string
	AuthorisedAccountIDs []string
	DebtorAccountID      string
	ConsentJWT           string
}

// RejectConsentArgs carries an inbound reject decision.
type RejectConsentArgs struct {
	ConsentID       string
	ResourceOwnerID string
	Reason          string
	ConsentJWT      string
}

// ConsumeConsentArgs carries a consume request from the payment execution
// layer, authenticated as the owning tenant. ConsumedBy defaults to the
// tenant id when empty.
type ConsumeConsentArgs struct {
	ConsentID   string
	APIClientID string
	ConsumedBy  string
}

// CreateConsent runs the idempotency guard, mints a type-prefixed id, and
// persists the consent in its initial status with version 0. A retry with the
// same key and payload returns the stored consent unchanged.
func (s *Service) CreateConsent(ctx context.Context, req CreateConsentRequest) (*consent.Consent, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Create",
		trace.WithAttributes(attribute.String("consent.intent_type", req.IntentType.String())))
	defer span.End()
	start := time.Now()

	if req.APIClientID == "" {
		return nil, s.finish("create", req.IntentType, start,
			dErrors.New(dErrors.CodeInvalidRequest, "api client id is required"))
	}
	if !req.IntentType.IsValid() {
		return nil, s.finish("create", req.IntentType, start,
			dErrors.New(dErrors.CodeInvalidRequest, "unsupported intent type"))
	}
	if req.IdempotencyKey == "" {
		// Without a key, retries would mint duplicate consents.
		return nil, s.finish("create", req.IntentType, start,
			dErrors.New(dErrors.CodeInvalidRequest, "idempotency key is required"))
	}

	fingerprint, err := consent.Fingerprint(req.APIClientID, req.IntentType, req.RequestObj)
	if err != nil {
		return nil, s.finish("create", req.IntentType, start, err)
	}

	existing, err := s.findExisting(ctx, req, fingerprint)
	if err != nil || existing != nil {
		return existing, s.finish("create", req.IntentType, start, err)
	}

	now := requestcontext.Now(ctx)
	created := &consent.Consent{
		ID:              req.IntentType.NewID(),
		APIClientID:     req.APIClientID,
		IntentType:      req.IntentType,
		Status:          consent.StatusAwaitingAuthorisation,
		IdempotencyKey:  req.IdempotencyKey,
		RequestObj:      req.RequestObj,
		Version:         0,
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}

	stored, err := s.store.Insert(ctx, created)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent create with the same key won the insert; answer
			// from the winner exactly as a sequential retry would.
			existing, err = s.findExisting(ctx, req, fingerprint)
			if err == nil && existing == nil {
				err = dErrors.New(dErrors.CodeDependencyUnavailable, "consent insert conflicted but no existing consent found")
			}
			return existing, s.finish("create", req.IntentType, start, err)
		}
		return nil, s.finish("create", req.IntentType, start,
			dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "failed to persist consent"))
	}

	s.emitAudit(ctx, audit.Event{
		Action:      audit.ActionConsentCreated,
		ConsentID:   stored.ID,
		APIClientID: stored.APIClientID,
		IntentType:  stored.IntentType.String(),
		NewStatus:   stored.Status.String(),
	})
	return stored, s.finish("create", req.IntentType, start, nil)
}

// findExisting applies the idempotency guard against a stored consent with the
// same (apiClientId, intentType, idempotencyKey). Returns nil, nil when no
// such consent exists.
func (s *Service) findExisting(ctx context.Context, req CreateConsentRequest, fingerprint string) (*consent.Consent, error) {
	existing, err := s.store.FindByIdempotencyKey(ctx, req.APIClientID, req.IntentType, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "failed to look up idempotency key")
	}

	existingFingerprint, err := consent.Fingerprint(existing.APIClientID, existing.IntentType, existing.RequestObj)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fingerprint stored consent")
	}
	if existingFingerprint != fingerprint {
		return nil, dErrors.New(dErrors.CodeIdempotencyKeyConflict,
			"idempotency key already used with a different payload")
	}
	s.metrics.IncrementIdempotentReplay()
	return existing, nil
}

// GetConsent fetches a consent by id for the owning tenant.
func (s *Service) GetConsent(ctx context.Context, id, apiClientID string) (*consent.Consent, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Get")
	defer span.End()

	if id == "" || apiClientID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "consent id and api client id are required")
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "failed to load consent")
	}
	if c.APIClientID != apiClientID {
		return nil, dErrors.New(dErrors.CodeAccessDenied, "consent belongs to a different api client")
	}
	return c, nil
}

// AuthoriseConsent applies a resource owner's authorise decision. The inbound
// assertion is verified before any state is touched; the result carries the
// signed outbound assertion attesting the new status.
func (s *Service) AuthoriseConsent(ctx context.Context, args AuthoriseConsentArgs) (*DecisionResult, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Authorise")
	defer span.End()
	start := time.Now()

	claims, err := s.verifyDecisionRequest(args.ConsentJWT, args.ConsentID)
	if err != nil {
		return nil, s.finish("authorise", "", start, err)
	}
	if args.ResourceOwnerID == "" {
		return nil, s.finish("authorise", "", start,
			dErrors.New(dErrors.CodeInvalidRequest, "resource owner id is required"))
	}
	if claims.ResourceOwnerID != "" && claims.ResourceOwnerID != args.ResourceOwnerID {
		return nil, s.finish("authorise", "", start,
			dErrors.New(dErrors.CodeInvalidAssertion, "resource owner does not match assertion"))
	}

	updated, err := s.transition(ctx, claims.ConsentID, claims.APIClientID, consent.OpAuthorise,
		func(c *consent.Consent) error {
			if c.IntentType.IsPayment() && args.DebtorAccountID == "" {
				return dErrors.New(dErrors.CodeInvalidRequest, "payment consents require a debtor account")
			}
			c.ResourceOwnerID = args.ResourceOwnerID
			c.AuthorisedAccountIDs = args.AuthorisedAccountIDs
			c.AuthorisedDebtorAccountID = args.DebtorAccountID
			return nil
		})
	if err != nil {
		return nil, s.finish("authorise", "", start, err)
	}

	token, err := s.codec.SignDecision(updated.ID, updated.Status.String(), updated.AuthorisedAccountIDs)
	if err != nil {
		return nil, s.finish("authorise", updated.IntentType, start, err)
	}

	s.emitAudit(ctx, audit.Event{
		Action:      audit.ActionConsentAuthorised,
		ConsentID:   updated.ID,
		APIClientID: updated.APIClientID,
		IntentType:  updated.IntentType.String(),
		OldStatus:   consent.StatusAwaitingAuthorisation.String(),
		NewStatus:   updated.Status.String(),
		Actor:       args.ResourceOwnerID,
	})
	return &DecisionResult{Consent: updated, AssertionJWT: token},
		s.finish("authorise", updated.IntentType, start, nil)
}

// RejectConsent applies a resource owner's reject decision.
func (s *Service) RejectConsent(ctx context.Context, args RejectConsentArgs) (*DecisionResult, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Reject")
	defer span.End()
	start := time.Now()

	claims, err := s.verifyDecisionRequest(args.ConsentJWT, args.ConsentID)
	if err != nil {
		return nil, s.finish("reject", "", start, err)
	}
	if args.ResourceOwnerID == "" {
		return nil, s.finish("reject", "", start,
			dErrors.New(dErrors.CodeInvalidRequest, "resource owner id is required"))
	}

	updated, err := s.transition(ctx, claims.ConsentID, claims.APIClientID, consent.OpReject,
		func(c *consent.Consent) error {
			c.RejectedByResourceOwnerID = args.ResourceOwnerID
			c.RejectionReason = args.Reason
			return nil
		})
	if err != nil {
		return nil, s.finish("reject", "", start, err)
	}

	token, err := s.codec.SignDecision(updated.ID, updated.Status.String(), nil)
	if err != nil {
		return nil, s.finish("reject", updated.IntentType, start, err)
	}

	s.emitAudit(ctx, audit.Event{
		Action:      audit.ActionConsentRejected,
		ConsentID:   updated.ID,
		APIClientID: updated.APIClientID,
		IntentType:  updated.IntentType.String(),
		OldStatus:   consent.StatusAwaitingAuthorisation.String(),
		NewStatus:   updated.Status.String(),
		Actor:       args.ResourceOwnerID,
		Reason:      args.Reason,
	})
	return &DecisionResult{Consent: updated, AssertionJWT: token},
		s.finish("reject", updated.IntentType, start, nil)
}

// ConsumeConsent marks an authorised payment consent as executed. Exact
// re-delivery by the same consumer identity is idempotent; a consume by a
// different identity is an invalid transition.
func (s *Service) ConsumeConsent(ctx context.Context, args ConsumeConsentArgs) (*consent.Consent, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Consume")
	defer span.End()
	start := time.Now()

	if args.ConsentID == "" || args.APIClientID == "" {
		return nil, s.finish("consume", "", start,
			dErrors.New(dErrors.CodeInvalidRequest, "consent id and api client id are required"))
	}
	consumedBy := args.ConsumedBy
	if consumedBy == "" {
		consumedBy = args.APIClientID
	}

	var replayed bool
	updated, err := s.transitionWithReplay(ctx, args.ConsentID, args.APIClientID, consent.OpConsume,
		func(c *consent.Consent) (bool, error) {
			if c.Status == consent.StatusConsumed {
				if s.consumerEq(c.ConsumedBy, consumedBy) {
					replayed = true
					return false, nil
				}
				return false, dErrors.New(dErrors.CodeInvalidStateTransition,
					"consent already consumed by a different identity")
			}
			c.ConsumedBy = consumedBy
			return true, nil
		})
	if err != nil {
		return nil, s.finish("consume", "", start, err)
	}
	if !replayed {
		s.emitAudit(ctx, audit.Event{
			Action:      audit.ActionConsentConsumed,
			ConsentID:   updated.ID,
			APIClientID: updated.APIClientID,
			IntentType:  updated.IntentType.String(),
			OldStatus:   consent.StatusAuthorised.String(),
			NewStatus:   updated.Status.String(),
			Actor:       consumedBy,
		})
	}
	return updated, s.finish("consume", updated.IntentType, start, nil)
}

// verifyDecisionRequest checks the inbound assertion and its binding to the
// payload's consent id.
func (s *Service) verifyDecisionRequest(consentJWT, payloadConsentID string) (*assertion.RequestClaims, error) {
	if consentJWT == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "consent jwt is required")
	}
	claims, err := s.codec.VerifyRequest(consentJWT)
	if err != nil {
		return nil, err
	}
	if payloadConsentID != "" && payloadConsentID != claims.ConsentID {
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "consent id does not match assertion")
	}
	return claims, nil
}

// transition applies op to the consent under optimistic concurrency. mutate
// runs on a copy after the tenant and state guards pass.
func (s *Service) transition(ctx context.Context, consentID, apiClientID string, op consent.Operation, mutate func(*consent.Consent) error) (*consent.Consent, error) {
	return s.transitionWithReplay(ctx, consentID, apiClientID, op,
		func(c *consent.Consent) (bool, error) {
			return true, mutate(c)
		})
}

// transitionWithReplay is the shared mutation loop: read, guard, write
// conditioned on the read version, with exactly one bounded retry on a version
// conflict. The retry re-reads and re-validates the guard, never blindly
// re-applies the write; a second conflict surfaces as ConcurrentModification.
// mutate returning (false, nil) means the operation is an accepted no-op
// (idempotent re-delivery) and the stored consent is returned untouched.
func (s *Service) transitionWithReplay(ctx context.Context, consentID, apiClientID string, op consent.Operation, mutate func(*consent.Consent) (bool, error)) (*consent.Consent, error) {
	const attempts = 2

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		current, err := s.store.Get(ctx, consentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "failed to load consent")
		}
		if current.APIClientID != apiClientID {
			return nil, dErrors.New(dErrors.CodeAccessDenied, "consent belongs to a different api client")
		}

		next := current.Clone()
		mutated, err := mutate(next)
		if err != nil {
			return nil, err
		}
		if !mutated {
			return current, nil
		}

		nextStatus, err := current.Status.NextStatus(op)
		if err != nil {
			return nil, err
		}
		next.Status = nextStatus
		next.Version = current.Version + 1
		next.StatusUpdatedAt = requestcontext.Now(ctx)

		updated, err := s.store.UpdateIfVersion(ctx, next, current.Version)
		if err == nil {
			s.metrics.IncrementTransition(current.Status.String(), nextStatus.String())
			return updated, nil
		}
		switch {
		case errors.Is(err, sentinel.ErrVersionConflict):
			s.metrics.IncrementVersionConflict()
			lastErr = err
			continue
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "failed to persist consent transition")
		}
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeConcurrentModification,
		"consent was modified concurrently")
}

// finish records metrics and failure logs for an operation, passing err
// through so call sites can return it inline.
func (s *Service) finish(operation string, intentType consent.IntentType, start time.Time, err error) error {
	outcome := "ok"
	if err != nil {
		var dErr *dErrors.Error
		if errors.As(err, &dErr) {
			outcome = string(dErr.Code)
		} else {
			outcome = string(dErrors.CodeInternal)
		}
		s.logger.Warn("consent operation failed",
			"operation", operation,
			"outcome", outcome,
			"error", err,
		)
	}
	s.metrics.IncrementOutcome(operation, intentType.String(), outcome)
	s.metrics.ObserveOperationLatency(operation, time.Since(start))
	return err
}

// emitAudit publishes an audit event when a publisher is wired.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit != nil {
		s.audit.Emit(ctx, event)
	}
}
