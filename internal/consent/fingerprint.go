package consent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"

	dErrors "obconsent/pkg/domain-errors"
)

// fingerprintFields are the semantically significant create fields. Transport
// noise (received-at timestamps, correlation ids) never reaches this struct,
// so a byte-for-byte retry and a re-serialised retry fingerprint identically.
type fingerprintFields struct {
	APIClientID string          `json:"apiClientId"`
	IntentType  IntentType      `json:"intentType"`
	RequestObj  json.RawMessage `json:"requestObj,omitempty"`
}

// Fingerprint computes the idempotency fingerprint of a create request:
// SHA-256 over the RFC 8785 canonical JSON of the significant fields. Two
// requests with the same fingerprint are the same logical consent.
func Fingerprint(apiClientID string, intentType IntentType, requestObj json.RawMessage) (string, error) {
	raw, err := json.Marshal(fingerprintFields{
		APIClientID: apiClientID,
		IntentType:  intentType,
		RequestObj:  requestObj,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidRequest, "request payload is not valid JSON")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidRequest, "request payload cannot be canonicalised")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
