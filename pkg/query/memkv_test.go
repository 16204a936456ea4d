package query

import (
	"context"
	"sort"
	"sync"

	"github.com/quilldb/quilldb/pkg/kv"
	"github.com/quilldb/quilldb/pkg/qerr"
)

// memStore is a minimal in-memory kv.Store used only by this package's
// tests, so the query engine's transactional contract can be exercised
// without a real bbolt file on disk.
type memStore struct {
	mu     sync.Mutex
	stores map[string]map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{stores: map[string]map[string][]byte{}}
}

func (m *memStore) Open(ctx context.Context, opts kv.OpenOptions) error {
	for _, name := range opts.Stores {
		m.ensure(name)
	}
	return nil
}

func (m *memStore) ensure(name string) {
	if _, ok := m.stores[name]; !ok {
		m.stores[name] = map[string][]byte{}
	}
}

func (m *memStore) EnsureStore(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(name)
	return nil
}

func (m *memStore) Begin(ctx context.Context, stores []string, writable bool) (kv.Txn, error) {
	m.mu.Lock()
	for _, s := range stores {
		m.ensure(s)
	}
	m.mu.Unlock()
	return &memTxn{parent: m, writable: writable, writes: map[string]map[string][]byte{}, deletes: map[string]map[string]bool{}}, nil
}

func (m *memStore) DropStore(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, name)
	return nil
}

func (m *memStore) Close() error { return nil }

type memTxn struct {
	parent   *memStore
	writable bool
	writes   map[string]map[string][]byte
	deletes  map[string]map[string]bool
	done     bool
}

func (t *memTxn) Writable() bool { return t.writable }

func (t *memTxn) Get(store string, key []byte) ([]byte, error) {
	if w, ok := t.writes[store]; ok {
		if v, ok := w[string(key)]; ok {
			return v, nil
		}
	}
	if d, ok := t.deletes[store]; ok && d[string(key)] {
		return nil, nil
	}
	bucket := t.parent.stores[store]
	return bucket[string(key)], nil
}

func (t *memTxn) Put(store string, key, val []byte) error {
	if !t.writable {
		return qerr.New(qerr.TransactionAborted, "memTxn.Put", "read-only transaction")
	}
	if t.writes[store] == nil {
		t.writes[store] = map[string][]byte{}
	}
	t.writes[store][string(key)] = append([]byte(nil), val...)
	if t.deletes[store] != nil {
		delete(t.deletes[store], string(key))
	}
	return nil
}

func (t *memTxn) Delete(store string, key []byte) error {
	if !t.writable {
		return qerr.New(qerr.TransactionAborted, "memTxn.Delete", "read-only transaction")
	}
	if t.deletes[store] == nil {
		t.deletes[store] = map[string]bool{}
	}
	t.deletes[store][string(key)] = true
	if t.writes[store] != nil {
		delete(t.writes[store], string(key))
	}
	return nil
}

func (t *memTxn) Cursor(store string) (kv.Cursor, error) {
	base := t.parent.stores[store]
	merged := map[string][]byte{}
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range t.writes[store] {
		merged[k] = v
	}
	for k := range t.deletes[store] {
		delete(merged, k)
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memCursor{keys: keys, vals: merged, pos: -1}, nil
}

func (t *memTxn) Commit() error {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	for store, kvs := range t.writes {
		t.parent.ensure(store)
		for k, v := range kvs {
			t.parent.stores[store][k] = v
		}
	}
	for store, ks := range t.deletes {
		t.parent.ensure(store)
		for k := range ks {
			delete(t.parent.stores[store], k)
		}
	}
	t.done = true
	return nil
}

func (t *memTxn) Abort() error {
	t.done = true
	return nil
}

type memCursor struct {
	keys []string
	vals map[string][]byte
	pos  int
}

func (c *memCursor) First() ([]byte, []byte) {
	if len(c.keys) == 0 {
		return nil, nil
	}
	c.pos = 0
	return []byte(c.keys[0]), c.vals[c.keys[0]]
}

func (c *memCursor) Last() ([]byte, []byte) {
	if len(c.keys) == 0 {
		return nil, nil
	}
	c.pos = len(c.keys) - 1
	return []byte(c.keys[c.pos]), c.vals[c.keys[c.pos]]
}

func (c *memCursor) Next() ([]byte, []byte) {
	c.pos++
	if c.pos >= len(c.keys) {
		return nil, nil
	}
	return []byte(c.keys[c.pos]), c.vals[c.keys[c.pos]]
}

func (c *memCursor) Prev() ([]byte, []byte) {
	c.pos--
	if c.pos < 0 {
		return nil, nil
	}
	return []byte(c.keys[c.pos]), c.vals[c.keys[c.pos]]
}

func (c *memCursor) Seek(prefix []byte) ([]byte, []byte) {
	for i, k := range c.keys {
		if k >= string(prefix) {
			c.pos = i
			return []byte(k), c.vals[k]
		}
	}
	c.pos = len(c.keys)
	return nil, nil
}
