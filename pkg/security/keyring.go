package security

import "sync"

// keyEntry is one key-id/key pair held by the ring.
type keyEntry struct {
	id  string
	key []byte
}

// KeyRing is the ordered list of active encryption keys — (key-id, key)
// pairs, head is the write key. Reads try every entry by key-id; writes
// always use the head.
type KeyRing struct {
	mu      sync.RWMutex
	entries []keyEntry
}

// NewKeyRing initializes a ring with a single entry.
func NewKeyRing(id string, key []byte) *KeyRing {
	return &KeyRing{entries: []keyEntry{{id: id, key: key}}}
}

// ActiveKeyID returns the head key-id used for new writes.
func (r *KeyRing) ActiveKeyID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[0].id
}

// ActiveKey returns the head key bytes.
func (r *KeyRing) ActiveKey() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[0].key
}

// Lookup finds a key by id, trying ring entries in order.
func (r *KeyRing) Lookup(id string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.id == id {
			return e.key, true
		}
	}
	return nil, false
}

// Prepend makes (id, key) the new active head, keeping prior entries so
// in-flight readers can still decrypt rows not yet rewritten.
func (r *KeyRing) Prepend(id string, key []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]keyEntry{{id: id, key: key}}, r.entries...)
}

// RemoveExcept zeroes and drops every entry whose id is not keep — called
// once a rotation sweep has rewritten every row under the new key.
func (r *KeyRing) RemoveExcept(keep string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.id == keep {
			kept = append(kept, e)
			continue
		}
		zero(e.key)
	}
	r.entries = kept
}

// RemoveHead undoes a Prepend: it zeroes and drops the head entry. A ring
// with a single entry is left unchanged.
func (r *KeyRing) RemoveHead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) <= 1 {
		return
	}
	zero(r.entries[0].key)
	r.entries = r.entries[1:]
}

// Descriptors returns the key-ids currently in the ring (never raw key
// material) — persisted in the __meta store.
func (r *KeyRing) Descriptors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}
	return ids
}

// Zero destroys all key material, called on facade Close.
func (r *KeyRing) Zero() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		zero(e.key)
	}
	r.entries = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
