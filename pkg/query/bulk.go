package query

import (
	"context"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
)

// InsertMany inserts records in order inside a single shared write
// transaction spanning the whole batch. In the default all-or-nothing mode
// (TableDef.BestEffort == false) the first failure aborts that transaction
// and returns the error: since insertOneInTxn only issues a row's Put after
// every validation, index, and changelog step for it has already succeeded,
// nothing from the failing record (or anything after it) is ever staged,
// and the abort discards everything staged by records before it too — no
// row is left durably committed. In BestEffort mode, a failing record is
// recorded in BulkResult.Failed and simply skipped (its Put was never
// issued) while the shared transaction continues and is still committed at
// the end, so every record that did pass persists together.
func (e *Engine) InsertMany(ctx context.Context, table string, records []types.Row) (*BulkResult, error) {
	t, err := e.table(table)
	if err != nil {
		return nil, err
	}
	result := &BulkResult{}
	if len(records) == 0 {
		return result, nil
	}

	txn, err := e.store.Begin(ctx, e.writeStores(t.Name), true)
	if err != nil {
		return nil, err
	}
	for i, row := range records {
		if err := e.insertOneInTxn(ctx, txn, t, row); err != nil {
			if !t.BestEffort {
				_ = txn.Abort()
				result.Inserted = 0
				return result, err
			}
			result.addFailure(i, err)
			continue
		}
		result.Inserted++
	}
	if err := txn.Commit(); err != nil {
		return result, err
	}
	e.notifyCommitted()
	return result, nil
}

// UpdateMany applies every (pk, partial) pair in updates inside one shared
// write transaction, so a caller touching several rows as a single logical
// step — the memory layer's contextual-retrieval access-count bump is the
// motivating case — gets one atomic commit instead of one per row. The
// first failure aborts the whole transaction; no row in updates is
// partially applied.
func (e *Engine) UpdateMany(ctx context.Context, table string, updates map[string]types.Row) error {
	t, err := e.table(table)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	txn, err := e.store.Begin(ctx, e.writeStores(t.Name), true)
	if err != nil {
		return err
	}
	for pk, partial := range updates {
		key, err := pkBytes(types.StringValue(pk))
		if err != nil {
			_ = txn.Abort()
			return err
		}
		existing, err := txn.Get(t.Name, key)
		if err != nil {
			_ = txn.Abort()
			return err
		}
		if existing == nil {
			_ = txn.Abort()
			return qerr.New(qerr.NotFound, "query.UpdateMany", "no row with this primary key").WithTable(t.Name)
		}
		before, err := codec.DecodeRow(t, existing, e.open(t))
		if err != nil {
			_ = txn.Abort()
			return err
		}
		merged := before.Clone()
		for k, v := range partial {
			merged[k] = v
		}
		if t.Validate != nil {
			if err := t.Validate(merged); err != nil {
				_ = txn.Abort()
				return qerr.Wrap(qerr.ValidationFailed, "query.UpdateMany", err).WithTable(t.Name)
			}
		}
		if err := t.CheckRow(merged); err != nil {
			_ = txn.Abort()
			return err
		}
		doc, err := codec.EncodeRow(t, merged, e.seal(t))
		if err != nil {
			_ = txn.Abort()
			return err
		}
		if err := txn.Put(t.Name, key, doc); err != nil {
			_ = txn.Abort()
			return err
		}
		var vec []float32
		if t.Vector != nil {
			if v, ok := merged[t.Vector.Column]; ok {
				vec, _ = v.AsVector()
			}
		}
		if err := e.indexes.IndexRow(t.Name, pk, searchableText(t, merged), vec); err != nil {
			_ = txn.Abort()
			return err
		}
		if err := e.emit(txn, t.Name, "update", pk, before, merged); err != nil {
			_ = txn.Abort()
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.notifyCommitted()
	return nil
}
