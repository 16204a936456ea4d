package security

import (
	"context"
	"sync/atomic"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/kv"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/schema"
)

// Rotator implements online key rotation: a new key becomes active for
// writes immediately, then a bounded-fan-out sweep re-encrypts every
// sensitive field under the new key in batches, after which retired keys
// are zeroed and dropped from the ring. The sweep is idempotent — a row
// already bearing the new key-id is skipped, so a resumed rotation after
// a crash only touches remaining old-key rows.
type Rotator struct {
	mgr       *Manager
	store     kv.Store
	tables    map[string]*schema.TableDef
	batchSize int
	rotating  atomic.Bool
}

// NewRotator builds a Rotator over every table in tables (only those with
// sensitive columns are actually swept).
func NewRotator(mgr *Manager, store kv.Store, tables map[string]*schema.TableDef, batchSize int) *Rotator {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Rotator{mgr: mgr, store: store, tables: tables, batchSize: batchSize}
}

// InProgress reports whether a sweep is currently running, so a caller can
// avoid persisting a new pending-rotation record (and the ring mutation
// that would follow it) over one already in flight.
func (r *Rotator) InProgress() bool {
	return r.rotating.Load()
}

// Rotate takes a caller-supplied new key, activates it for writes, and
// sweeps all sensitive rows onto it. The caller (quilldb.RotateEncryptionKey)
// is responsible for durably persisting newKeyID — sealed under the
// previously-active key — to __meta *before* calling Rotate, so that a
// crash during the sweep below can be recovered from on the next Open: see
// SweepAll's doc comment for why reverting the ring on failure here would
// be unsafe.
func (r *Rotator) Rotate(ctx context.Context, newKeyID string, newKey []byte) error {
	if !r.rotating.CompareAndSwap(false, true) {
		return qerr.New(qerr.RotationInProgress, "security.Rotate", "rotation already in progress")
	}
	defer r.rotating.Store(false)

	r.mgr.Ring().Prepend(newKeyID, newKey)
	return r.SweepAll(ctx, newKeyID)
}

// Resume continues a rotation whose new key has already been prepended to
// the ring — by quilldb.Open's crash-recovery path, reconstructing the
// ring from a __meta-persisted sealed key — rather than by this Rotate
// call. It takes the same CAS lock Rotate does, so a concurrent explicit
// RotateEncryptionKey call is rejected while resume is in flight.
func (r *Rotator) Resume(ctx context.Context, newKeyID string) error {
	if !r.rotating.CompareAndSwap(false, true) {
		return qerr.New(qerr.RotationInProgress, "security.Resume", "rotation already in progress")
	}
	defer r.rotating.Store(false)
	return r.SweepAll(ctx, newKeyID)
}

// SweepAll re-encrypts every sensitive row of every table onto newKeyID,
// which must already be the ring's head. It deliberately never reverts the
// ring on failure: sweepBatch commits each batch independently and
// durably, so by the time any table-level error surfaces, rows already
// seen in earlier batches (of this table or an earlier one) may already be
// durably encrypted under newKeyID. Dropping newKeyID from the ring at
// that point — as an earlier version of this code did via RemoveHead —
// would make those rows permanently undecryptable. Leaving the ring with
// both keys lets the sweep simply be retried (sweepBatch's per-row
// resumption is already idempotent), either by calling Rotate/Resume again
// or via quilldb.Open's automatic crash-recovery retry.
func (r *Rotator) SweepAll(ctx context.Context, newKeyID string) error {
	for _, t := range r.tables {
		if len(t.Sensitive) == 0 {
			continue
		}
		if err := r.sweepTable(ctx, t, newKeyID); err != nil {
			return err
		}
	}
	r.mgr.Ring().RemoveExcept(newKeyID)
	return nil
}

// sweepTable re-encrypts every row of t still under a retired key, in
// batches of r.batchSize committed independently so a crash mid-sweep
// leaves a resumable, mixed-key table rather than a half-open transaction.
func (r *Rotator) sweepTable(ctx context.Context, t *schema.TableDef, newKeyID string) error {
	var cursorKey []byte
	for {
		if err := ctx.Err(); err != nil {
			return qerr.Wrap(qerr.Cancelled, "security.sweepTable", err).WithTable(t.Name)
		}
		n, next, err := r.sweepBatch(ctx, t, newKeyID, cursorKey)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		cursorKey = next
	}
}

func (r *Rotator) sweepBatch(ctx context.Context, t *schema.TableDef, newKeyID string, from []byte) (int, []byte, error) {
	txn, err := r.store.Begin(ctx, []string{t.Name}, true)
	if err != nil {
		return 0, nil, err
	}
	cur, err := txn.Cursor(t.Name)
	if err != nil {
		_ = txn.Abort()
		return 0, nil, err
	}

	var key, val []byte
	if from == nil {
		key, val = cur.First()
	} else {
		key, val = cur.Seek(from)
		if key != nil && string(key) == string(from) {
			key, val = cur.Next()
		}
	}

	processed := 0
	var lastKey []byte
	for key != nil && processed < r.batchSize {
		envelopes, err := codec.RawSensitiveFields(t, val)
		if err != nil {
			_ = txn.Abort()
			return 0, nil, qerr.Wrap(qerr.DecryptFailed, "security.sweepBatch", err).WithTable(t.Name)
		}
		doc := val
		dirty := false
		for col, env := range envelopes {
			if env.KeyID == newKeyID {
				continue // already rotated, idempotent resume
			}
			plain, err := r.mgr.Open(col, env)
			if err != nil {
				_ = txn.Abort()
				return 0, nil, err // DecryptFailed is fatal, never auto-recovered
			}
			newEnv, err := r.mgr.Seal(col, plain)
			if err != nil {
				_ = txn.Abort()
				return 0, nil, err
			}
			doc, err = codec.ReplaceSensitiveField(doc, col, newEnv)
			if err != nil {
				_ = txn.Abort()
				return 0, nil, err
			}
			dirty = true
		}
		if dirty {
			if err := txn.Put(t.Name, key, doc); err != nil {
				_ = txn.Abort()
				return 0, nil, err
			}
		}
		lastKey = append([]byte(nil), key...)
		processed++
		key, val = cur.Next()
	}

	if err := txn.Commit(); err != nil {
		return 0, nil, err
	}
	return processed, lastKey, nil
}
