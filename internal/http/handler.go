package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"obconsent/internal/consent"
	"obconsent/internal/consent/service"
	domainerrors "obconsent/pkg/domain-errors"
)

// ConsentService is the slice of the consent service the internal surface
// needs.
type ConsentService interface {
	CreateConsent(ctx context.Context, req service.CreateConsentRequest) (*consent.Consent, error)
	GetConsent(ctx context.Context, id, apiClientID string) (*consent.Consent, error)
	AuthoriseConsent(ctx context.Context, args service.AuthoriseConsentArgs) (*service.DecisionResult, error)
	RejectConsent(ctx context.Context, args service.RejectConsentArgs) (*service.DecisionResult, error)
	ConsumeConsent(ctx context.Context, args service.ConsumeConsentArgs) (*consent.Consent, error)
}

// Handler serves the internal consent surface consumed by the surrounding
// gateway layers. It is deliberately plain: the caller is trusted
// infrastructure, tenant identity arrives as a header, and decision calls
// still carry the signed request assertion end to end.
type Handler struct {
	svc ConsentService
}

func NewHandler(svc ConsentService) *Handler {
	return &Handler{svc: svc}
}

const (
	headerAPIClientID    = "X-Api-Client-Id"
	headerIdempotencyKey = "X-Idempotency-Key"
)

type createConsentPayload struct {
	IntentType string          `json:"intentType"`
	RequestObj json.RawMessage `json:"requestObj"`
}

type decisionPayload struct {
	ConsentJWT           string   `json:"consentJwt"`
	ResourceOwnerID      string   `json:"resourceOwnerId"`
	AuthorisedAccountIDs []string `json:"authorisedAccountIds,omitempty"`
	DebtorAccountID      string   `json:"debtorAccountId,omitempty"`
	Reason               string   `json:"reason,omitempty"`
}

type consumePayload struct {
	ConsumedBy string `json:"consumedBy,omitempty"`
}

type decisionResponse struct {
	Consent      *consent.Consent `json:"consent"`
	AssertionJWT string           `json:"assertionJwt"`
}

func (h *Handler) createConsent(w http.ResponseWriter, r *http.Request) {
	var payload createConsentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeInvalidRequest, "malformed request body"))
		return
	}

	created, err := h.svc.CreateConsent(r.Context(), service.CreateConsentRequest{
		APIClientID:    r.Header.Get(headerAPIClientID),
		IntentType:     consent.IntentType(payload.IntentType),
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		RequestObj:     payload.RequestObj,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getConsent(w http.ResponseWriter, r *http.Request) {
	got, err := h.svc.GetConsent(r.Context(), chi.URLParam(r, "id"), r.Header.Get(headerAPIClientID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (h *Handler) authoriseConsent(w http.ResponseWriter, r *http.Request) {
	var payload decisionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeInvalidRequest, "malformed request body"))
		return
	}

	result, err := h.svc.AuthoriseConsent(r.Context(), service.AuthoriseConsentArgs{
		ConsentID:            chi.URLParam(r, "id"),
		ResourceOwnerID:      payload.ResourceOwnerID,
		AuthorisedAccountIDs: payload.AuthorisedAccountIDs,
		DebtorAccountID:      payload.DebtorAccountID,
		ConsentJWT:           payload.ConsentJWT,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Consent: result.Consent, AssertionJWT: result.AssertionJWT})
}

func (h *Handler) rejectConsent(w http.ResponseWriter, r *http.Request) {
	var payload decisionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeInvalidRequest, "malformed request body"))
		return
	}

	result, err := h.svc.RejectConsent(r.Context(), service.RejectConsentArgs{
		ConsentID:       chi.URLParam(r, "id"),
		ResourceOwnerID: payload.ResourceOwnerID,
		Reason:          payload.Reason,
		ConsentJWT:      payload.ConsentJWT,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Consent: result.Consent, AssertionJWT: result.AssertionJWT})
}

func (h *Handler) consumeConsent(w http.ResponseWriter, r *http.Request) {
	var payload consumePayload
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, domainerrors.New(domainerrors.CodeInvalidRequest, "malformed request body"))
			return
		}
	}

	consumed, err := h.svc.ConsumeConsent(r.Context(), service.ConsumeConsentArgs{
		ConsentID:   chi.URLParam(r, "id"),
		APIClientID: r.Header.Get(headerAPIClientID),
		ConsumedBy:  payload.ConsumedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, consumed)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	var derr *domainerrors.Error
	if !errors.As(err, &derr) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: string(domainerrors.CodeInternal), Message: "internal error"})
		return
	}
	writeJSON(w, statusFor(derr.Code), errorBody{Code: string(derr.Code), Message: derr.Message})
}

func statusFor(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeInvalidRequest:
		return http.StatusBadRequest
	case domainerrors.CodeInvalidAssertion:
		return http.StatusUnauthorized
	case domainerrors.CodeAccessDenied:
		return http.StatusForbidden
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeIdempotencyKeyConflict,
		domainerrors.CodeInvalidStateTransition,
		domainerrors.CodeConcurrentModification:
		return http.StatusConflict
	case domainerrors.CodeDependencyUnavailable:
		return http.StatusServiceUnavailable
	case domainerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
