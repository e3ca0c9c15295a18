// Package assertion builds and verifies the signed decision tokens exchanged
// with the decisioning component. Outbound tokens attest the outcome of an
// authorise/reject decision; inbound tokens assert the caller's identity and
// the consent a decision submission targets.
package assertion

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "obconsent/pkg/domain-errors"
)

// DecisionClaims is the outbound (response) assertion payload. Subject is the
// consent id so the original requester can bind the attestation to the
// resource it asked about.
type DecisionClaims struct {
	ConsentStatus        string   `json:"consent_status"`
	AuthorisedAccountIDs []string `json:"authorised_account_ids,omitempty"`
	jwt.RegisteredClaims
}

// RequestClaims is the inbound (request) assertion payload, produced upstream
// from an authenticated session exchange.
type RequestClaims struct {
	APIClientID     string `json:"client_id"`
	ConsentID       string `json:"intent_id"`
	ResourceOwnerID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Config carries the codec's issuer identity and trust settings.
type Config struct {
	// Issuer is stamped on outbound tokens.
	Issuer string
	// Audience is stamped on outbound tokens.
	Audience string
	// TokenTTL bounds the validity window of outbound tokens.
	TokenTTL time.Duration
	// TrustedIssuers is the allow-list for inbound token issuers.
	TrustedIssuers []string
	// AllowedAlgorithms restricts inbound JWS algorithms. Defaults to PS256.
	AllowedAlgorithms []string
}

// Codec signs outbound decision assertions and verifies inbound ones. It is
// instantiated once at process start and shared by reference; key material is
// read through the provider on every call so external rotation takes effect
// without re-wiring.
type Codec struct {
	keys           KeyProvider
	issuer         string
	audience       string
	tokenTTL       time.Duration
	trustedIssuers map[string]bool
	allowedAlgs    map[string]bool
}

const defaultTokenTTL = 5 * time.Minute

// NewCodec constructs a Codec from a key provider and trust configuration.
func NewCodec(keys KeyProvider, cfg Config) *Codec {
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	algs := cfg.AllowedAlgorithms
	if len(algs) == 0 {
		algs = []string{AlgorithmPS256}
	}
	c := &Codec{
		keys:           keys,
		issuer:         cfg.Issuer,
		audience:       cfg.Audience,
		tokenTTL:       ttl,
		trustedIssuers: make(map[string]bool, len(cfg.TrustedIssuers)),
		allowedAlgs:    make(map[string]bool, len(algs)),
	}
	for _, iss := range cfg.TrustedIssuers {
		c.trustedIssuers[iss] = true
	}
	for _, alg := range algs {
		c.allowedAlgs[alg] = true
	}
	return c
}

// SignDecision produces the outbound assertion for a completed decision.
// The token header carries the active key id and algorithm; the caller
// forwards the token unmodified to the original requester.
func (c *Codec) SignDecision(consentID, status string, accountIDs []string) (string, error) {
	keyID, key, alg := c.keys.SigningKey()
	if key == nil {
		return "", dErrors.New(dErrors.CodeDependencyUnavailable, "no active signing key")
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", dErrors.New(dErrors.CodeDependencyUnavailable, "unsupported signing algorithm "+alg)
	}

	now := time.Now()
	token := jwt.NewWithClaims(method, DecisionClaims{
		ConsentStatus:        status,
		AuthorisedAccountIDs: accountIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   consentID,
			Audience:  []string{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
			ID:        uuid.NewString(),
		},
	})
	token.Header["kid"] = keyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "sign decision assertion")
	}
	return signed, nil
}

// VerifyRequest validates an inbound decision-request assertion: signature
// against the trusted verification set, algorithm allow-list, expiry, and
// issuer. No state is mutated on failure; the service refuses the decision.
func (c *Codec) VerifyRequest(tokenString string) (*RequestClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &RequestClaims{}, c.resolveKey,
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeInvalidAssertion, "decision assertion has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidAssertion, "decision assertion failed verification")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "decision assertion is not valid")
	}

	claims, ok := parsed.Claims.(*RequestClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "decision assertion carries unexpected claims")
	}
	if !c.trustedIssuers[claims.Issuer] {
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "decision assertion issuer is not trusted")
	}
	if claims.ConsentID == "" || claims.APIClientID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "decision assertion is missing consent or client identity")
	}
	return claims, nil
}

// ParseDecision verifies a token produced by SignDecision against the current
// verification set. The decisioning component uses this to check outbound
// tokens it relays; tests use it to close the round trip.
func (c *Codec) ParseDecision(tokenString string) (*DecisionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &DecisionClaims{}, c.resolveKey,
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidAssertion, "decision assertion failed verification")
	}
	claims, ok := parsed.Claims.(*DecisionClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "decision assertion is not valid")
	}
	return claims, nil
}

// resolveKey is the parse keyfunc: enforce the algorithm allow-list, then
// match the token's kid against the trusted verification set.
func (c *Codec) resolveKey(token *jwt.Token) (any, error) {
	if !c.allowedAlgs[token.Method.Alg()] {
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "algorithm "+token.Method.Alg()+" is not allowed")
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "decision assertion has no key id")
	}
	for _, vk := range c.keys.VerificationKeys() {
		if vk.KeyID == kid && vk.Algorithm == token.Method.Alg() {
			return vk.Key, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeInvalidAssertion, "key id "+kid+" is not in the trusted set")
}
