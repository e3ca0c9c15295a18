package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "obconsent/pkg/domain-errors"
)

func TestFingerprint(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		a, err := Fingerprint("tpp-1", IntentDomesticPayment, []byte(`{"amount":"10.00","currency":"GBP"}`))
		require.NoError(t, err)
		b, err := Fingerprint("tpp-1", IntentDomesticPayment, []byte(`{"amount":"10.00","currency":"GBP"}`))
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("ignores key order and whitespace in the payload", func(t *testing.T) {
		a, err := Fingerprint("tpp-1", IntentDomesticPayment, []byte(`{"amount":"10.00","currency":"GBP"}`))
		require.NoError(t, err)
		b, err := Fingerprint("tpp-1", IntentDomesticPayment, []byte(` { "currency" : "GBP" , "amount" : "10.00" } `))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("changes with any significant field", func(t *testing.T) {
		base, err := Fingerprint("tpp-1", IntentDomesticPayment, []byte(`{"amount":"10.00"}`))
		require.NoError(t, err)

		otherClient, err := Fingerprint("tpp-2", IntentDomesticPayment, []byte(`{"amount":"10.00"}`))
		require.NoError(t, err)
		assert.NotEqual(t, base, otherClient)

		otherType, err := Fingerprint("tpp-1", IntentInternationalPayment, []byte(`{"amount":"10.00"}`))
		require.NoError(t, err)
		assert.NotEqual(t, base, otherType)

		otherPayload, err := Fingerprint("tpp-1", IntentDomesticPayment, []byte(`{"amount":"10.01"}`))
		require.NoError(t, err)
		assert.NotEqual(t, base, otherPayload)
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		_, err := Fingerprint("tpp-1", IntentDomesticPayment, []byte(`{"amount":`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
	})

	t.Run("accepts absent payload", func(t *testing.T) {
		a, err := Fingerprint("tpp-1", IntentAccountAccess, nil)
		require.NoError(t, err)
		b, err := Fingerprint("tpp-1", IntentAccountAccess, nil)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
