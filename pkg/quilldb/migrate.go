package quilldb

import (
	"context"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/types"
)

// tableSnapshot records one table's column layout as of the last time
// __meta was written, so the next Open can diff it against the
// newly-requested schema instead of only ever comparing a bare version
// number (which only catches a requested downgrade, not what actually
// changed about any one table).
type tableSnapshot struct {
	Columns map[string]types.ColumnType `json:"columns"`
}

// migrateSchema reconciles the durable store with db.schema against the
// snapshot recorded in meta.Tables: a table no longer declared is dropped
// entirely, a column added since the snapshot is backfilled onto every
// existing row with its type's zero value, and a column whose type changed
// is rejected rather than silently corrupting future reads of it. On
// return meta.Tables is updated to match db.schema, ready to be persisted
// by the caller.
func (db *DB) migrateSchema(ctx context.Context, meta *dbMeta) error {
	for name := range meta.Tables {
		if _, ok := db.schema[name]; ok {
			continue
		}
		if err := db.store.DropStore(name); err != nil {
			return qerr.Wrap(qerr.IncompatibleSchemaChange, "quilldb.migrateSchema", err).WithTable(name)
		}
	}

	for name, t := range db.schema {
		prior, existed := meta.Tables[name]
		if !existed {
			continue // brand-new table: no rows predate it, nothing to migrate
		}
		added := map[string]types.ColumnType{}
		for col, ct := range t.Columns {
			priorCT, ok := prior.Columns[col]
			if !ok {
				added[col] = ct
				continue
			}
			if priorCT != ct {
				return qerr.New(qerr.IncompatibleSchemaChange, "quilldb.migrateSchema",
					"column type changed since the last open").WithTable(name).WithColumn(col)
			}
		}
		if len(added) > 0 {
			if err := db.backfillColumns(ctx, t, added); err != nil {
				return err
			}
		}
	}

	snapshot := make(map[string]tableSnapshot, len(db.schema))
	for name, t := range db.schema {
		cols := make(map[string]types.ColumnType, len(t.Columns))
		for col, ct := range t.Columns {
			cols[col] = ct
		}
		snapshot[name] = tableSnapshot{Columns: cols}
	}
	meta.Tables = snapshot
	if db.cfg.Version > 0 {
		meta.SchemaVersion = db.cfg.Version
	}
	return nil
}

// backfillColumns rewrites every row of t missing one of added's columns,
// setting it to that column's type default so CheckRow's "missing optional
// column" allowance doesn't paper over what should now always be present.
// Rows already carrying the column (e.g. written after the upgrade began
// but before this Open finished migrating) are left untouched.
func (db *DB) backfillColumns(ctx context.Context, t *schema.TableDef, added map[string]types.ColumnType) error {
	txn, err := db.store.Begin(ctx, []string{t.Name}, true)
	if err != nil {
		return err
	}
	cur, err := txn.Cursor(t.Name)
	if err != nil {
		_ = txn.Abort()
		return err
	}
	seal := db.sealFor(t)
	open := db.openSeal(t)

	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		row, err := codec.DecodeRow(t, v, open)
		if err != nil {
			_ = txn.Abort()
			return err
		}
		dirty := false
		for col, ct := range added {
			if _, present := row[col]; !present {
				row[col] = schema.Default(ct)
				dirty = true
			}
		}
		if !dirty {
			continue
		}
		doc, err := codec.EncodeRow(t, row, seal)
		if err != nil {
			_ = txn.Abort()
			return err
		}
		if err := txn.Put(t.Name, k, doc); err != nil {
			_ = txn.Abort()
			return err
		}
	}
	return txn.Commit()
}

// sealFor returns the Seal function backfillColumns needs to re-encrypt any
// sensitive column of t it rewrites; nil when t has none, matching
// query.Engine.seal's same-shaped helper.
func (db *DB) sealFor(t *schema.TableDef) codec.Seal {
	if len(t.Sensitive) == 0 {
		return nil
	}
	return func(column string, plaintext []byte) (codec.Envelope, error) {
		if db.crypto == nil {
			return codec.Envelope{}, qerr.New(qerr.ValidationFailed, "quilldb.sealFor", "table declares sensitive columns but no encryption manager is configured").WithTable(t.Name).WithColumn(column)
		}
		return db.crypto.Seal(column, plaintext)
	}
}
