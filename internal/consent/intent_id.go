package consent

import "github.com/google/uuid"

// NewID mints a globally unique, type-prefixed consent id, e.g.
// "PDC_0f8fad5b-d9cb-469f-a165-70867728950e". The random component is a v4
// UUID (122 bits of entropy), so uniqueness needs no store round-trip.
//
// uuid.NewString panics only on entropy-source failure.
func (t IntentType) NewID() string {
	return intentPrefixes[t] + "_" + uuid.NewString()
}
