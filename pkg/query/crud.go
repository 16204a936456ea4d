package query

import (
	"context"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/kv"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/types"
)

// Insert validates and writes one row, updating every index transactionally.
func (e *Engine) Insert(ctx context.Context, table string, row types.Row) error {
	t, err := e.table(table)
	if err != nil {
		return err
	}
	return e.insertOne(ctx, t, row)
}

func (e *Engine) insertOne(ctx context.Context, t *schema.TableDef, row types.Row) error {
	txn, err := e.store.Begin(ctx, e.writeStores(t.Name), true)
	if err != nil {
		return err
	}
	if err := e.insertOneInTxn(ctx, txn, t, row); err != nil {
		_ = txn.Abort()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.notifyCommitted()
	return nil
}

// insertOneInTxn validates and indexes row, then writes it last within txn,
// so that any failure short-circuits before the row's Put is ever issued —
// the caller's txn is left exactly as it was if this returns an error,
// whether the caller then aborts the whole transaction (InsertMany's
// default mode) or simply moves on to the next record (BestEffort mode).
func (e *Engine) insertOneInTxn(ctx context.Context, txn kv.Txn, t *schema.TableDef, row types.Row) error {
	row = row.Clone()
	if t.Validate != nil {
		if err := t.Validate(row); err != nil {
			return qerr.Wrap(qerr.ValidationFailed, "query.Insert", err).WithTable(t.Name)
		}
	}
	vec, err := e.resolveVector(ctx, t, row)
	if err != nil {
		return err
	}
	if vec != nil && t.Vector != nil {
		row[t.Vector.Column] = types.VectorValue(vec)
	}
	if err := t.CheckRow(row); err != nil {
		return err
	}
	pkVal, ok := row[t.PrimaryKey]
	if !ok {
		return qerr.New(qerr.ValidationFailed, "query.Insert", "missing primary key").WithTable(t.Name).WithColumn(t.PrimaryKey)
	}
	pkStr := pkString(pkVal)
	key, err := pkBytes(pkVal)
	if err != nil {
		return err
	}

	existing, err := txn.Get(t.Name, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return qerr.New(qerr.DuplicateKey, "query.Insert", "primary key already exists").WithTable(t.Name)
	}
	doc, err := codec.EncodeRow(t, row, e.seal(t))
	if err != nil {
		return err
	}
	if err := e.indexes.IndexRow(t.Name, pkStr, searchableText(t, row), vec); err != nil {
		return err
	}
	if err := e.emit(txn, t.Name, "insert", pkStr, nil, row); err != nil {
		return err
	}
	return txn.Put(t.Name, key, doc)
}

// Update applies partial to the row identified by pk, re-running
// validation and re-indexing on the merged result.
func (e *Engine) Update(ctx context.Context, table, pk string, partial types.Row) error {
	t, err := e.table(table)
	if err != nil {
		return err
	}
	key, err := pkBytes(types.StringValue(pk))
	if err != nil {
		return err
	}

	txn, err := e.store.Begin(ctx, e.writeStores(t.Name), true)
	if err != nil {
		return err
	}
	existing, err := txn.Get(t.Name, key)
	if err != nil {
		_ = txn.Abort()
		return err
	}
	if existing == nil {
		_ = txn.Abort()
		return qerr.New(qerr.NotFound, "query.Update", "no row with this primary key").WithTable(t.Name)
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
			return qerr.Wrap(qerr.ValidationFailed, "query.Update", err).WithTable(t.Name)
		}
	}
	vec, err := e.resolveVector(ctx, t, merged)
	if err != nil {
		_ = txn.Abort()
		return err
	}
	if vec != nil && t.Vector != nil {
		merged[t.Vector.Column] = types.VectorValue(vec)
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
	if err := e.indexes.IndexRow(t.Name, pk, searchableText(t, merged), vec); err != nil {
		_ = txn.Abort()
		return err
	}
	if err := e.emit(txn, t.Name, "update", pk, before, merged); err != nil {
		_ = txn.Abort()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.notifyCommitted()
	return nil
}

// Delete removes the row identified by pk and its index entries.
func (e *Engine) Delete(ctx context.Context, table, pk string) error {
	t, err := e.table(table)
	if err != nil {
		return err
	}
	key, err := pkBytes(types.StringValue(pk))
	if err != nil {
		return err
	}

	txn, err := e.store.Begin(ctx, e.writeStores(t.Name), true)
	if err != nil {
		return err
	}
	existing, err := txn.Get(t.Name, key)
	if err != nil {
		_ = txn.Abort()
		return err
	}
	if existing == nil {
		_ = txn.Abort()
		return qerr.New(qerr.NotFound, "query.Delete", "no row with this primary key").WithTable(t.Name)
	}
	before, err := codec.DecodeRow(t, existing, e.open(t))
	if err != nil {
		_ = txn.Abort()
		return err
	}
	if err := txn.Delete(t.Name, key); err != nil {
		_ = txn.Abort()
		return err
	}
	if err := e.indexes.RemoveRow(t.Name, pk); err != nil {
		_ = txn.Abort()
		return err
	}
	if err := e.emit(txn, t.Name, "delete", pk, before, nil); err != nil {
		_ = txn.Abort()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.notifyCommitted()
	return nil
}

// Get reads and decodes the row identified by pk.
func (e *Engine) Get(ctx context.Context, table, pk string) (types.Row, error) {
	t, err := e.table(table)
	if err != nil {
		return nil, err
	}
	key, err := pkBytes(types.StringValue(pk))
	if err != nil {
		return nil, err
	}
	txn, err := e.store.Begin(ctx, []string{t.Name}, false)
	if err != nil {
		return nil, err
	}
	defer txn.Abort()
	raw, err := txn.Get(t.Name, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, qerr.New(qerr.NotFound, "query.Get", "no row with this primary key").WithTable(t.Name)
	}
	return codec.DecodeRow(t, raw, e.open(t))
}

// GetAll returns up to limit rows in PK order (limit <= 0 means unbounded).
func (e *Engine) GetAll(ctx context.Context, table string, limit int) ([]types.Row, error) {
	t, err := e.table(table)
	if err != nil {
		return nil, err
	}
	txn, err := e.store.Begin(ctx, []string{t.Name}, false)
	if err != nil {
		return nil, err
	}
	defer txn.Abort()
	cur, err := txn.Cursor(t.Name)
	if err != nil {
		return nil, err
	}
	var out []types.Row
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		row, err := codec.DecodeRow(t, v, e.open(t))
		if err != nil {
			return nil, err
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
