package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/qerr"
)

// Manager seals and opens per-field envelopes against a KeyRing, the way
// the teacher's SecretsManager wraps AES-256-GCM, generalized to a ring of
// keys instead of one fixed key so rotation can hold old and new
// simultaneously.
type Manager struct {
	ring *KeyRing
}

// NewManager wraps an existing ring.
func NewManager(ring *KeyRing) *Manager { return &Manager{ring: ring} }

// Ring exposes the underlying ring, e.g. for Descriptors() at shutdown.
func (m *Manager) Ring() *KeyRing { return m.ring }

// Seal encrypts plaintext under the ring's active key with a fresh 96-bit
// nonce, returning the Envelope to persist. Column is accepted for
// signature symmetry with codec.Seal; AES-GCM here has no column-derived
// additional data.
func (m *Manager) Seal(column string, plaintext []byte) (codec.Envelope, error) {
	keyID := m.ring.ActiveKeyID()
	key := m.ring.ActiveKey()
	gcm, err := newGCM(key)
	if err != nil {
		return codec.Envelope{}, qerr.Wrap(qerr.KeyDerivationFailed, "security.Seal", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return codec.Envelope{}, qerr.Wrap(qerr.KeyDerivationFailed, "security.Seal", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]
	return codec.Envelope{
		KeyID:      keyID,
		Nonce:      base64.RawURLEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawURLEncoding.EncodeToString(ct),
		Tag:        base64.RawURLEncoding.EncodeToString(tag),
	}, nil
}

// Open decrypts env, looking its key-id up in the ring. A row sealed under
// a retired key fails with DecryptFailed. Open has no per-field marker
// mode: every failure is returned as an error.
func (m *Manager) Open(column string, env codec.Envelope) ([]byte, error) {
	key, ok := m.ring.Lookup(env.KeyID)
	if !ok {
		return nil, qerr.New(qerr.DecryptFailed, "security.Open", "key-id not in ring: "+env.KeyID).WithColumn(column)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, qerr.Wrap(qerr.DecryptFailed, "security.Open", err).WithColumn(column)
	}
	nonce, err := base64.RawURLEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, qerr.Wrap(qerr.DecryptFailed, "security.Open", err).WithColumn(column)
	}
	ct, err := base64.RawURLEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, qerr.Wrap(qerr.DecryptFailed, "security.Open", err).WithColumn(column)
	}
	tag, err := base64.RawURLEncoding.DecodeString(env.Tag)
	if err != nil {
		return nil, qerr.Wrap(qerr.DecryptFailed, "security.Open", err).WithColumn(column)
	}
	sealed := append(append([]byte(nil), ct...), tag...)
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, qerr.Wrap(qerr.DecryptFailed, "security.Open", err).WithColumn(column)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
