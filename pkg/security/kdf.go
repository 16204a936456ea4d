// Package security implements per-field envelope encryption and online key
// rotation, grounded on the teacher's pkg/security AES-256-GCM secrets
// manager, with the memory-hard key derivation step grounded on
// golang.org/x/crypto/argon2 (see other_examples/busyrockin-api-vault).
package security

import (
	"crypto/rand"

	"github.com/quilldb/quilldb/pkg/qerr"
	"golang.org/x/crypto/argon2"
)

// KDFParams tunes the argon2id derivation. Zero-value Params resolves to
// DefaultKDFParams.
type KDFParams struct {
	TimeCost    uint32
	MemoryCost  uint32 // KiB
	Parallelism uint8
	KeyLen      uint32
}

// DefaultKDFParams are conservative interactive-use defaults.
func DefaultKDFParams() KDFParams {
	return KDFParams{TimeCost: 3, MemoryCost: 64 * 1024, Parallelism: 2, KeyLen: 32}
}

func (p KDFParams) orDefault() KDFParams {
	if p.TimeCost == 0 && p.MemoryCost == 0 && p.Parallelism == 0 && p.KeyLen == 0 {
		return DefaultKDFParams()
	}
	return p
}

// NewSalt returns a fresh random per-DB salt, persisted once in the
// reserved __meta store and reused for every subsequent derivation.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, qerr.Wrap(qerr.KeyDerivationFailed, "security.NewSalt", err)
	}
	return salt, nil
}

// DeriveKey derives a symmetric key from passphrase using argon2id. The
// caller-supplied salt must be stable per-DB.
func DeriveKey(passphrase string, salt []byte, params KDFParams) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, qerr.New(qerr.KeyDerivationFailed, "security.DeriveKey", "empty passphrase")
	}
	if len(salt) == 0 {
		return nil, qerr.New(qerr.KeyDerivationFailed, "security.DeriveKey", "empty salt")
	}
	p := params.orDefault()
	key := argon2.IDKey([]byte(passphrase), salt, p.TimeCost, p.MemoryCost, p.Parallelism, p.KeyLen)
	return key, nil
}
