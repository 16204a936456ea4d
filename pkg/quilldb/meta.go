package quilldb

import (
	"context"
	"encoding/json"

	"github.com/quilldb/quilldb/pkg/qerr"
)

func encodeMeta(m dbMeta) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, qerr.Wrap(qerr.ValidationFailed, "quilldb.encodeMeta", err)
	}
	return data, nil
}

func decodeMeta(data []byte) (dbMeta, error) {
	var m dbMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return dbMeta{}, qerr.Wrap(qerr.ValidationFailed, "quilldb.decodeMeta", err)
	}
	return m, nil
}

// updateMeta reads the current __meta document, applies mutate, and
// commits the result in a single transaction — the shared read-modify-
// write path for every __meta update after init (key-ring descriptors,
// pending-rotation bookkeeping).
func (db *DB) updateMeta(ctx context.Context, mutate func(meta *dbMeta)) error {
	txn, err := db.store.Begin(ctx, []string{metaStore}, true)
	if err != nil {
		return err
	}
	raw, err := txn.Get(metaStore, []byte(metaKey))
	if err != nil {
		_ = txn.Abort()
		return err
	}
	meta, err := decodeMeta(raw)
	if err != nil {
		_ = txn.Abort()
		return err
	}
	mutate(&meta)
	encoded, err := encodeMeta(meta)
	if err != nil {
		_ = txn.Abort()
		return err
	}
	if err := txn.Put(metaStore, []byte(metaKey), encoded); err != nil {
		_ = txn.Abort()
		return err
	}
	return txn.Commit()
}
