// Package query implements the data-plane operations — insert, update,
// delete, get, find, search, vectorSearch, hybridSearch — over a schema's
// tables, wiring the codec, security, and index layers together inside a
// single KV transaction per logical operation, the way the teacher's
// pkg/storage.BoltStore methods each wrap one bolt.DB.Update/View call.
package query

import (
	"context"
	"strings"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/index"
	"github.com/quilldb/quilldb/pkg/kv"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/security"
	"github.com/quilldb/quilldb/pkg/types"
)

// Embedder maps a source string to its vector embedding.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// ChangeNotifier is the narrow capability the engine uses to tell the sync
// layer about a mutation, without importing pkg/sync — the facade wires a
// concrete implementation in. Emit is called with the same write Txn the
// row mutation used, so the change-set record commits atomically with it;
// Stores names the extra object store(s) (the changelog store) that must
// therefore be included in that Txn's Begin call alongside the row table.
type ChangeNotifier interface {
	Emit(txn kv.Txn, table string, kind string, pk string, before, after types.Row) error
	Stores() []string
}

// Engine ties one schema's tables to a KV store, the index manager, and an
// optional encryption manager.
type Engine struct {
	store     kv.Store
	schema    schema.Schema
	indexes   *index.Manager
	crypto    *security.Manager // nil if the DB was opened without encryption
	embedders map[string]Embedder
	notifier  ChangeNotifier
	strictEmbed bool
}

// NewEngine builds an Engine. crypto may be nil when no table declares
// sensitive columns.
func NewEngine(store kv.Store, s schema.Schema, indexes *index.Manager, crypto *security.Manager) *Engine {
	return &Engine{store: store, schema: s, indexes: indexes, crypto: crypto, embedders: map[string]Embedder{}}
}

// SetNotifier wires the sync change-log emitter, called once by the facade.
func (e *Engine) SetNotifier(n ChangeNotifier) { e.notifier = n }

// SetStrictEmbedding controls whether an embedder failure aborts the
// mutating operation (true) or stores the row without a vector (false,
// the default — lenient mode).
func (e *Engine) SetStrictEmbedding(strict bool) { e.strictEmbed = strict }

// RegisterEmbedder associates fn with table's vector-bearing column.
// Re-registration replaces the previous embedder.
func (e *Engine) RegisterEmbedder(table string, fn Embedder) error {
	if _, err := e.table(table); err != nil {
		return err
	}
	e.embedders[table] = fn
	return nil
}

// Embedder returns table's registered embedder, if any, so callers outside
// the engine (the memory layer's contextual retrieval) can reuse the same
// embedding function instead of registering a second one.
func (e *Engine) Embedder(table string) (Embedder, bool) {
	fn, ok := e.embedders[table]
	return fn, ok
}

func (e *Engine) table(name string) (*schema.TableDef, error) {
	t, ok := e.schema[name]
	if !ok {
		return nil, qerr.New(qerr.NotFound, "query.table", "no such table").WithTable(name)
	}
	return t, nil
}

func (e *Engine) seal(t *schema.TableDef) codec.Seal {
	if len(t.Sensitive) == 0 {
		return nil
	}
	return func(column string, plaintext []byte) (codec.Envelope, error) {
		if e.crypto == nil {
			return codec.Envelope{}, qerr.New(qerr.ValidationFailed, "query.seal", "table declares sensitive columns but no encryption manager is configured").WithTable(t.Name).WithColumn(column)
		}
		return e.crypto.Seal(column, plaintext)
	}
}

func (e *Engine) open(t *schema.TableDef) codec.Open {
	if len(t.Sensitive) == 0 {
		return nil
	}
	return func(column string, env codec.Envelope) ([]byte, error) {
		if e.crypto == nil {
			return nil, qerr.New(qerr.ValidationFailed, "query.open", "table declares sensitive columns but no encryption manager is configured").WithTable(t.Name).WithColumn(column)
		}
		return e.crypto.Open(column, env)
	}
}

// searchableText concatenates every searchable column's string form, the
// text the inverted index tokenizes.
func searchableText(t *schema.TableDef, row types.Row) string {
	var parts []string
	for col := range t.Searchable {
		v, ok := row[col]
		if !ok {
			continue
		}
		if s, ok := v.AsString(); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// resolveVector returns the row's explicit vector, or computes one via a
// registered embedder from the vector field's source column, or nil if
// neither is available.
func (e *Engine) resolveVector(ctx context.Context, t *schema.TableDef, row types.Row) ([]float32, error) {
	if t.Vector == nil {
		return nil, nil
	}
	if vec, ok := row[t.Vector.Column]; ok && vec.Type == types.ColVector {
		v, _ := vec.AsVector()
		return v, nil
	}
	if t.Vector.SourceField == "" {
		return nil, nil
	}
	src, ok := row[t.Vector.SourceField]
	if !ok {
		return nil, nil
	}
	text, ok := src.AsString()
	if !ok {
		return nil, nil
	}
	fn, ok := e.embedders[t.Name]
	if !ok {
		return nil, nil
	}
	vec, err := fn(ctx, text)
	if err != nil {
		wrapped := qerr.Wrap(qerr.EmbedderFailed, "query.resolveVector", err).WithTable(t.Name).WithColumn(t.Vector.SourceField)
		if e.strictEmbed {
			return nil, wrapped
		}
		return nil, nil
	}
	return vec, nil
}

func (e *Engine) emit(txn kv.Txn, table, kind, pk string, before, after types.Row) error {
	if e.notifier == nil {
		return nil
	}
	return e.notifier.Emit(txn, table, kind, pk, before, after)
}

// writeStores returns the object stores a mutating transaction on table
// must span: the row store itself plus, if a notifier is wired, its extra
// stores (the changelog), so the change-set record commits atomically
// with the row mutation.
func (e *Engine) writeStores(table string) []string {
	stores := []string{table}
	if e.notifier != nil {
		stores = append(stores, e.notifier.Stores()...)
	}
	return stores
}

// CommitObserver is the optional capability a ChangeNotifier implements
// when it needs to react after a transaction it participated in durably
// commits — for example, waking registered sync adapters now that the
// change-set record they'll read is guaranteed visible.
type CommitObserver interface {
	AfterCommit()
}

func (e *Engine) notifyCommitted() {
	if observer, ok := e.notifier.(CommitObserver); ok {
		observer.AfterCommit()
	}
}
