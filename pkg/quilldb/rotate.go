package quilldb

import (
	"context"

	"github.com/google/uuid"
	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/metrics"
	"github.com/quilldb/quilldb/pkg/qerr"
)

// RotateEncryptionKey performs online key rotation: newKey becomes active
// for writes immediately, then every sensitive field across every table is
// re-encrypted under it in bounded batches, after which the retired key is
// zeroed and dropped from the ring. The facade moves ready->rotating for
// the duration and back to ready on both success and failure, matching the
// "rotating?" lifecycle state.
//
// newKeyID and a sealed copy of newKey are persisted to __meta before the
// sweep's first batch commits, so a crash mid-sweep is recoverable: Open's
// crash-recovery path (see openKeyRing and resumePendingRotation) rebuilds
// a ring containing both keys from that persisted record and finishes the
// sweep, rather than leaving rows durably re-encrypted under a key no
// on-disk record ever named.
func (db *DB) RotateEncryptionKey(ctx context.Context, newKey []byte) error {
	if err := db.checkReady(); err != nil {
		return err
	}
	if db.crypto == nil {
		return qerr.New(qerr.ValidationFailed, "quilldb.RotateEncryptionKey", "database was opened without encryption")
	}
	if db.rotator.InProgress() {
		return qerr.New(qerr.RotationInProgress, "quilldb.RotateEncryptionKey", "a rotation is already in progress")
	}

	db.mu.Lock()
	db.state = StateRotating
	db.mu.Unlock()
	metrics.RotationInProgress.Set(1)
	defer func() {
		db.mu.Lock()
		db.state = StateReady
		db.mu.Unlock()
		metrics.RotationInProgress.Set(0)
	}()

	newKeyID := uuid.NewString()
	sealed, err := db.crypto.Seal(rotationSealColumn, newKey)
	if err != nil {
		return qerr.Wrap(qerr.KeyDerivationFailed, "quilldb.RotateEncryptionKey", err)
	}
	if err := db.persistPendingRotation(ctx, newKeyID, sealed); err != nil {
		return err
	}

	if err := db.rotator.Rotate(ctx, newKeyID, newKey); err != nil {
		// The sweep may be partially done and durably committed; meta keeps
		// naming newKeyID so the next Open (or a retried call once ready
		// again) can resume it. See Rotator.SweepAll.
		return err
	}

	return db.clearPendingRotation(ctx)
}

// resumePendingRotation is called once, from open(), when __meta still
// names a rotation that was in flight when the database last closed. The
// ring has already been reconstructed with both keys by openKeyRing; this
// only needs to finish (or redo, harmlessly — sweepBatch is idempotent per
// row) the sweep and then clear the pending-rotation record.
func (db *DB) resumePendingRotation(ctx context.Context, pending *pendingRotation) error {
	db.mu.Lock()
	db.state = StateRotating
	db.mu.Unlock()
	metrics.RotationInProgress.Set(1)
	defer func() {
		db.mu.Lock()
		db.state = StateOpening
		db.mu.Unlock()
		metrics.RotationInProgress.Set(0)
	}()

	if err := db.rotator.Resume(ctx, pending.NewKeyID); err != nil {
		return qerr.Wrap(qerr.RotationInProgress, "quilldb.resumePendingRotation", err)
	}
	return db.clearPendingRotation(ctx)
}

func (db *DB) persistPendingRotation(ctx context.Context, newKeyID string, sealed codec.Envelope) error {
	return db.updateMeta(ctx, func(meta *dbMeta) {
		meta.PendingRotation = &pendingRotation{NewKeyID: newKeyID, SealedNewKey: sealed}
	})
}

// clearPendingRotation records the sweep's completion: the ring now holds
// only newKeyID (Rotator.SweepAll already dropped the retired key), so the
// persisted descriptor list is brought in line with it and the
// pending-rotation record is removed.
func (db *DB) clearPendingRotation(ctx context.Context) error {
	return db.updateMeta(ctx, func(meta *dbMeta) {
		meta.PendingRotation = nil
		meta.KeyRingDescriptors = db.crypto.Ring().Descriptors()
	})
}
