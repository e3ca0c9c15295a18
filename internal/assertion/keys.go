package assertion

import (
	"crypto"
	"crypto/rsa"
	"sync"
)

// AlgorithmPS256 is the JWS algorithm consent decision assertions are signed
// with.
const AlgorithmPS256 = "PS256"

// VerificationKey is one member of the currently-trusted verification set.
type VerificationKey struct {
	KeyID     string
	Key       crypto.PublicKey
	Algorithm string
}

// KeyProvider abstracts key storage and rotation away from the codec. The
// codec only ever asks for the active signing key and the trusted verification
// set; where the material lives and when it rotates is the provider's problem.
type KeyProvider interface {
	// SigningKey returns the active private key, its key id, and the JWS
	// algorithm tokens signed with it must advertise.
	SigningKey() (keyID string, key *rsa.PrivateKey, algorithm string)

	// VerificationKeys returns every currently-trusted verification key.
	// During rotation this includes rotated-out keys, so tokens signed before
	// the rotation verify until their own expiry.
	VerificationKeys() []VerificationKey
}

// StaticProvider holds key material in memory. Rotation keeps the previous
// signing key in the trusted set for zero-downtime rollover.
type StaticProvider struct {
	mu        sync.RWMutex
	keyID     string
	key       *rsa.PrivateKey
	algorithm string
	trusted   []VerificationKey
}

// NewStaticProvider builds a provider around a single signing key. The key is
// also the first member of the trusted verification set.
func NewStaticProvider(keyID string, key *rsa.PrivateKey, algorithm string) *StaticProvider {
	return &StaticProvider{
		keyID:     keyID,
		key:       key,
		algorithm: algorithm,
		trusted: []VerificationKey{
			{KeyID: keyID, Key: key.Public(), Algorithm: algorithm},
		},
	}
}

func (p *StaticProvider) SigningKey() (string, *rsa.PrivateKey, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.keyID, p.key, p.algorithm
}

func (p *StaticProvider) VerificationKeys() []VerificationKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]VerificationKey, len(p.trusted))
	copy(keys, p.trusted)
	return keys
}

// Rotate swaps the active signing key. The outgoing key stays in the trusted
// verification set; callers prune it with Retire once its tokens have expired.
func (p *StaticProvider) Rotate(keyID string, key *rsa.PrivateKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyID = keyID
	p.key = key
	p.trusted = append(p.trusted, VerificationKey{
		KeyID: keyID, Key: key.Public(), Algorithm: p.algorithm,
	})
}

// Retire removes a key id from the trusted verification set.
func (p *StaticProvider) Retire(keyID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	trusted := p.trusted[:0]
	for _, k := range p.trusted {
		if k.KeyID != keyID {
			trusted = append(trusted, k)
		}
	}
	p.trusted = trusted
}
