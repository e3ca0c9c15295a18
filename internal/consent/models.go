package consent

import (
	"encoding/json"
	"strings"
	"time"

	dErrors "obconsent/pkg/domain-errors"
)

// IntentType is the category of action a consent authorises. The value drives
// the id prefix and payment-specific transition guards; the per-variant request
// payload stays opaque to the state machine.
type IntentType string

const (
	IntentDomesticPayment       IntentType = "domestic_payment_consent"
	IntentDomesticScheduled     IntentType = "domestic_scheduled_payment_consent"
	IntentInternationalPayment  IntentType = "international_payment_consent"
	IntentDomesticStandingOrder IntentType = "domestic_standing_order_consent"
	IntentDomesticVRP           IntentType = "domestic_vrp_consent"
	IntentAccountAccess         IntentType = "account_access_consent"
	IntentFundsConfirmation     IntentType = "funds_confirmation_consent"
)

// intentPrefixes is the single source of truth for id prefixes. Prefixes allow
// type dispatch from the identifier string alone, without a store lookup.
var intentPrefixes = map[IntentType]string{
	IntentDomesticPayment:       "PDC",
	IntentDomesticScheduled:     "PDSC",
	IntentInternationalPayment:  "PIC",
	IntentDomesticStandingOrder: "PDSOC",
	IntentDomesticVRP:           "DVRP",
	IntentAccountAccess:         "AAC",
	IntentFundsConfirmation:     "FCC",
}

// ParseIntentType constructs an IntentType from external input.
//
// Errors: returns CodeInvalidRequest when the value is empty or unsupported.
func ParseIntentType(s string) (IntentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidRequest, "intent type cannot be empty")
	}
	t := IntentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidRequest, "unsupported intent type")
	}
	return t, nil
}

// IsValid checks the intent type against the supported set.
func (t IntentType) IsValid() bool {
	_, ok := intentPrefixes[t]
	return ok
}

// IsPayment reports whether consents of this type authorise a funds movement.
// Payment consents require a debtor account at authorisation time and reach
// the terminal Consumed status once executed.
func (t IntentType) IsPayment() bool {
	switch t {
	case IntentDomesticPayment, IntentDomesticScheduled, IntentInternationalPayment,
		IntentDomesticStandingOrder, IntentDomesticVRP:
		return true
	}
	return false
}

// String returns the string representation of the intent type.
func (t IntentType) String() string {
	return string(t)
}

// IntentTypeFromID recovers the intent type from a type-prefixed consent id.
//
// Errors: returns CodeInvalidRequest when the id carries no known prefix.
func IntentTypeFromID(consentID string) (IntentType, error) {
	prefix, _, found := strings.Cut(consentID, "_")
	if !found || prefix == "" {
		return "", dErrors.New(dErrors.CodeInvalidRequest, "malformed consent id")
	}
	for t, p := range intentPrefixes {
		if p == prefix {
			return t, nil
		}
	}
	return "", dErrors.New(dErrors.CodeInvalidRequest, "unknown consent id prefix")
}

// Status is the lifecycle state of a consent. Mutated only through state
// machine transitions; everything off the transition table fails closed.
type Status string

const (
	StatusAwaitingAuthorisation Status = "AwaitingAuthorisation"
	StatusAuthorised            Status = "Authorised"
	StatusRejected              Status = "Rejected"
	StatusConsumed              Status = "Consumed"
	// StatusExpired is terminal and externally triggered; the core never sets
	// it but must fail closed for consents already expired by outside policy.
	StatusExpired Status = "Expired"
)

// IsValid checks the status against the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusAwaitingAuthorisation, StatusAuthorised, StatusRejected, StatusConsumed, StatusExpired:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Operation names a consent lifecycle mutation for transition checks and audit.
type Operation string

const (
	OpAuthorise Operation = "authorise"
	OpReject    Operation = "reject"
	OpConsume   Operation = "consume"
)

// transitions is the legal edge set of the lifecycle state machine. The check
// in NextStatus is total over (status, operation): any pair not listed here is
// an explicit error, never a silent no-op. A payment system must not let an
// authorisation replay or a rejected consent later move funds.
var transitions = map[Status]map[Operation]Status{
	StatusAwaitingAuthorisation: {
		OpAuthorise: StatusAuthorised,
		OpReject:    StatusRejected,
	},
	StatusAuthorised: {
		OpConsume: StatusConsumed,
	},
}

// NextStatus returns the status reached by applying op from the current status.
//
// Errors: returns CodeInvalidStateTransition for every (status, operation)
// pair outside the transition table.
func (s Status) NextStatus(op Operation) (Status, error) {
	if next, ok := transitions[s][op]; ok {
		return next, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidStateTransition,
		"cannot "+string(op)+" consent in status "+string(s))
}

// Consent is the stored authorisation resource. ID, APIClientID, IntentType,
// IdempotencyKey and RequestObj are immutable after creation; Status and the
// decision fields change only through state machine transitions, each of which
// increments Version.
type Consent struct {
	ID             string          `json:"id"`
	APIClientID    string          `json:"apiClientId"`
	IntentType     IntentType      `json:"intentType"`
	Status         Status          `json:"status"`
	IdempotencyKey string          `json:"idempotencyKey"`
	RequestObj     json.RawMessage `json:"requestObj"`

	// Decision fields, absent until an authorise/reject/consume lands.
	ResourceOwnerID           string   `json:"resourceOwnerId,omitempty"`
	AuthorisedAccountIDs      []string `json:"authorisedAccountIds,omitempty"`
	AuthorisedDebtorAccountID string   `json:"authorisedDebtorAccountId,omitempty"`
	RejectedByResourceOwnerID string   `json:"rejectedByResourceOwnerId,omitempty"`
	RejectionReason           string   `json:"rejectionReason,omitempty"`
	ConsumedBy                string   `json:"consumedBy,omitempty"`

	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	StatusUpdatedAt time.Time `json:"statusUpdatedAt"`
}

// Clone returns a deep copy so stores can hand out snapshots without aliasing
// the slices or the raw payload.
func (c *Consent) Clone() *Consent {
	if c == nil {
		return nil
	}
	cp := *c
	if c.RequestObj != nil {
		cp.RequestObj = append(json.RawMessage(nil), c.RequestObj...)
	}
	if c.AuthorisedAccountIDs != nil {
		cp.AuthorisedAccountIDs = append([]string(nil), c.AuthorisedAccountIDs...)
	}
	return &cp
}
