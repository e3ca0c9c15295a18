package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "obconsent/pkg/domain-errors"
)

func TestParseIntentType(t *testing.T) {
	t.Run("accepts every supported type", func(t *testing.T) {
		for intentType := range intentPrefixes {
			parsed, err := ParseIntentType(string(intentType))
			require.NoError(t, err)
			assert.Equal(t, intentType, parsed)
		}
	})

	t.Run("rejects empty value", func(t *testing.T) {
		_, err := ParseIntentType("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
	})

	t.Run("rejects unknown value", func(t *testing.T) {
		_, err := ParseIntentType("gym_membership_consent")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
	})
}

func TestIntentTypeIsPayment(t *testing.T) {
	payments := []IntentType{
		IntentDomesticPayment, IntentDomesticScheduled, IntentInternationalPayment,
		IntentDomesticStandingOrder, IntentDomesticVRP,
	}
	for _, intentType := range payments {
		assert.True(t, intentType.IsPayment(), intentType)
	}
	assert.False(t, IntentAccountAccess.IsPayment())
	assert.False(t, IntentFundsConfirmation.IsPayment())
}

func TestNewID(t *testing.T) {
	t.Run("prefixes id with intent type marker", func(t *testing.T) {
		cases := map[IntentType]string{
			IntentDomesticPayment:       "PDC",
			IntentDomesticScheduled:     "PDSC",
			IntentInternationalPayment:  "PIC",
			IntentDomesticStandingOrder: "PDSOC",
			IntentDomesticVRP:           "DVRP",
			IntentAccountAccess:         "AAC",
			IntentFundsConfirmation:     "FCC",
		}
		for intentType, prefix := range cases {
			id := intentType.NewID()
			assert.Regexp(t, "^"+prefix+"_[0-9a-f-]{36}$", id)
		}
	})

	t.Run("ids are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id := IntentDomesticPayment.NewID()
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})

	t.Run("round-trips through IntentTypeFromID", func(t *testing.T) {
		for intentType := range intentPrefixes {
			recovered, err := IntentTypeFromID(intentType.NewID())
			require.NoError(t, err)
			assert.Equal(t, intentType, recovered)
		}
	})
}

func TestIntentTypeFromID(t *testing.T) {
	t.Run("rejects id without separator", func(t *testing.T) {
		_, err := IntentTypeFromID("PDC")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
	})

	t.Run("rejects unknown prefix", func(t *testing.T) {
		_, err := IntentTypeFromID("XYZ_6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
	})

	t.Run("rejects empty prefix", func(t *testing.T) {
		_, err := IntentTypeFromID("_6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
	})
}

func TestNextStatus(t *testing.T) {
	t.Run("legal transitions", func(t *testing.T) {
		cases := []struct {
			from Status
			op   Operation
			to   Status
		}{
			{StatusAwaitingAuthorisation, OpAuthorise, StatusAuthorised},
			{StatusAwaitingAuthorisation, OpReject, StatusRejected},
			{StatusAuthorised, OpConsume, StatusConsumed},
		}
		for _, tc := range cases {
			next, err := tc.from.NextStatus(tc.op)
			require.NoError(t, err)
			assert.Equal(t, tc.to, next)
		}
	})

	t.Run("every other pair fails closed", func(t *testing.T) {
		statuses := []Status{
			StatusAwaitingAuthorisation, StatusAuthorised, StatusRejected,
			StatusConsumed, StatusExpired,
		}
		operations := []Operation{OpAuthorise, OpReject, OpConsume}

		legal := map[Status]map[Operation]bool{
			StatusAwaitingAuthorisation: {OpAuthorise: true, OpReject: true},
			StatusAuthorised:            {OpConsume: true},
		}

		for _, status := range statuses {
			for _, op := range operations {
				if legal[status][op] {
					continue
				}
				_, err := status.NextStatus(op)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition),
					"(%s, %s) must be rejected", status, op)
			}
		}
	})
}

func TestConsentClone(t *testing.T) {
	original := &Consent{
		ID:                   "PDC_6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		APIClientID:          "tpp-1",
		IntentType:           IntentDomesticPayment,
		Status:               StatusAuthorised,
		RequestObj:           []byte(`{"amount":"10.00"}`),
		AuthorisedAccountIDs: []string{"acc-1", "acc-2"},
		Version:              3,
	}

	clone := original.Clone()
	clone.RequestObj[0] = 'X'
	clone.AuthorisedAccountIDs[0] = "acc-other"
	clone.Status = StatusConsumed

	assert.Equal(t, byte('{'), original.RequestObj[0])
	assert.Equal(t, "acc-1", original.AuthorisedAccountIDs[0])
	assert.Equal(t, StatusAuthorised, original.Status)

	var nilConsent *Consent
	assert.Nil(t, nilConsent.Clone())
}
