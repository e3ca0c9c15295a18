package audit

import "time"

// Action names a consent lifecycle event.
type Action string

const (
	ActionConsentCreated    Action = "consent_created"
	ActionConsentAuthorised Action = "consent_authorised"
	ActionConsentRejected   Action = "consent_rejected"
	ActionConsentConsumed   Action = "consent_consumed"
)

// Event records one accepted consent state change. Keep it transport-agnostic
// so sinks (memory, Kafka) can fan out without caring who emitted it.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      Action    `json:"action"`
	ConsentID   string    `json:"consentId"`
	APIClientID string    `json:"apiClientId"`
	IntentType  string    `json:"intentType"`
	OldStatus   string    `json:"oldStatus,omitempty"`
	NewStatus   string    `json:"newStatus"`
	// Actor is the resource owner or consumer identity behind the change.
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}
