// Package provenance stamps generated code with a keyed signature so a later
// reader can tell it came from this service unmodified.
package provenance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/axiom/ucws/internal/models"
)

// Algorithm is the signature scheme recorded on every stamp
const Algorithm = "HMAC-SHA256"

// Signer handles the creation and validation of provenance stamps
type Signer struct {
	signingKey []byte
	keyID      string
	now        func() time.Time
}

// NewSigner creates a signer. keyID is recorded on stamps so keys can be
// rotated; it may be empty.
func NewSigner(signingKey, keyID string) *Signer {
	return &Signer{
		signingKey: []byte(signingKey),
		keyID:      keyID,
		now:        time.Now,
	}
}

// Stamp hashes code and signs the hash chain
func (s *Signer) Stamp(code string) models.Provenance {
	p := models.Provenance{
		CodeHash:  Hash(code),
		Algorithm: Algorithm,
		KeyID:     s.keyID,
		SignedAt:  s.now().UTC().Truncate(time.Second),
	}
	p.Signature = s.sign(s.hashChain(p))
	return p
}

// Verify reports whether p was issued by this signer for exactly code
func (s *Signer) Verify(code string, p models.Provenance) bool {
	if p.Algorithm != Algorithm || p.CodeHash != Hash(code) {
		return false
	}
	expected, err := hex.DecodeString(s.sign(s.hashChain(p)))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(p.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// Hash computes the SHA-256 of code, hex encoded
func Hash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func (s *Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// hashChain binds the code hash to the key and signing time
func (s *Signer) hashChain(p models.Provenance) string {
	data := fmt.Sprintf("%s:%s:%s",
		p.CodeHash,
		p.KeyID,
		p.SignedAt.Format(time.RFC3339),
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
