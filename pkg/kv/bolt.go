package kv

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quilldb/quilldb/pkg/qerr"
	bolt "go.etcd.io/bbolt"
)

// openBlockTimeout bounds how long Open waits for another handle's file
// lock before surfacing UpgradeBlocked.
const openBlockTimeout = 2 * time.Second

// BoltStore implements Store on top of a single bbolt file, one bucket per
// named object store — the same shape as the teacher's BoltStore, with the
// bucket list supplied by the caller instead of hard-coded.
type BoltStore struct {
	mu sync.RWMutex
	db *bolt.DB
}

// NewBoltStore constructs an unopened store; call Open before use.
func NewBoltStore() *BoltStore { return &BoltStore{} }

func (s *BoltStore) Open(ctx context.Context, opts OpenOptions) error {
	db, err := bolt.Open(opts.Path, 0600, &bolt.Options{Timeout: openBlockTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return qerr.Wrap(qerr.UpgradeBlocked, "kv.Open", err)
		}
		return qerr.Wrap(qerr.TransactionAborted, "kv.Open", err)
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range opts.Stores {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return qerr.Wrap(qerr.TransactionAborted, "kv.Open", err)
			}
		}
		return nil
	})
}

func (s *BoltStore) EnsureStore(name string) error {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return qerr.New(qerr.NotReady, "kv.EnsureStore", "store not open")
	}
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
}

// DropStore removes a named store and everything in it — used by schema
// migration to reclaim a table dropped from the declared schema. Dropping a
// store that doesn't exist is a no-op, matching EnsureStore's idempotence.
func (s *BoltStore) DropStore(name string) error {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return qerr.New(qerr.NotReady, "kv.DropStore", "store not open")
	}
	err := db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte(name))
	})
	if errors.Is(err, bolt.ErrBucketNotFound) {
		return nil
	}
	if err != nil {
		return qerr.Wrap(qerr.TransactionAborted, "kv.DropStore", err)
	}
	return nil
}

func (s *BoltStore) Begin(ctx context.Context, stores []string, writable bool) (Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, qerr.Wrap(qerr.Cancelled, "kv.Begin", err)
	}
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, qerr.New(qerr.NotReady, "kv.Begin", "store not open")
	}
	tx, err := db.Begin(writable)
	if err != nil {
		return nil, qerr.Wrap(qerr.TransactionAborted, "kv.Begin", err)
	}
	if writable {
		for _, name := range stores {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				_ = tx.Rollback()
				return nil, qerr.Wrap(qerr.TransactionAborted, "kv.Begin", err)
			}
		}
	}
	return &boltTxn{tx: tx, writable: writable, ctx: ctx}, nil
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type boltTxn struct {
	tx       *bolt.Tx
	writable bool
	ctx      context.Context
	done     bool
}

func (t *boltTxn) Writable() bool { return t.writable }

func (t *boltTxn) bucket(store string) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(store))
	if b == nil {
		return nil, qerr.New(qerr.NotFound, "kv.Txn", "no such store: "+store)
	}
	return b, nil
}

func (t *boltTxn) Get(store string, key []byte) ([]byte, error) {
	b, err := t.bucket(store)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *boltTxn) Put(store string, key, val []byte) error {
	if !t.writable {
		return qerr.New(qerr.TransactionAborted, "kv.Txn.Put", "read-only transaction")
	}
	b, err := t.bucket(store)
	if err != nil {
		return err
	}
	return b.Put(key, val)
}

func (t *boltTxn) Delete(store string, key []byte) error {
	if !t.writable {
		return qerr.New(qerr.TransactionAborted, "kv.Txn.Delete", "read-only transaction")
	}
	b, err := t.bucket(store)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

func (t *boltTxn) Cursor(store string) (Cursor, error) {
	b, err := t.bucket(store)
	if err != nil {
		return nil, err
	}
	return &boltCursor{c: b.Cursor()}, nil
}

func (t *boltTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.ctx.Err(); err != nil {
		_ = t.tx.Rollback()
		return qerr.Wrap(qerr.Cancelled, "kv.Txn.Commit", err)
	}
	if err := t.tx.Commit(); err != nil {
		return qerr.Wrap(qerr.TransactionAborted, "kv.Txn.Commit", err)
	}
	return nil
}

func (t *boltTxn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

type boltCursor struct{ c *bolt.Cursor }

func (c *boltCursor) First() ([]byte, []byte) { return c.c.First() }
func (c *boltCursor) Last() ([]byte, []byte)  { return c.c.Last() }
func (c *boltCursor) Next() ([]byte, []byte)  { return c.c.Next() }
func (c *boltCursor) Prev() ([]byte, []byte)  { return c.c.Prev() }
func (c *boltCursor) Seek(prefix []byte) ([]byte, []byte) { return c.c.Seek(prefix) }
