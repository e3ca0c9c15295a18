package audit

import "context"

// Sink receives audit events. Implementations must tolerate concurrent Append
// calls; the publisher gives no ordering guarantee across consent ids.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also be read back, used by tests and by the
// in-process deployment mode.
type Store interface {
	Sink
	ListByConsent(ctx context.Context, consentID string) ([]Event, error)
}
