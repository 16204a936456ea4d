// Package schema defines table definitions: column types, primary key,
// searchable fields, optional vector descriptor, sensitive columns, and
// per-row validators.
package schema

import (
	"fmt"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
)

// VectorField describes the single vector-bearing column of a table.
// Dims must be explicit — the engine never infers dimensionality from
// observed data.
type VectorField struct {
	Column      string // the ColVector column holding the embedding
	SourceField string // text field an embedder reads to populate Column, "" if vectors are supplied directly
	Dims        int
	Metric      string // only "cosine" is implemented
}

// Validator inspects a candidate row before insert/update and returns a
// non-nil error (wrapped as qerr.ValidationFailed by the caller) if the row
// is rejected.
type Validator func(row types.Row) error

// TableDef is one table's schema.
type TableDef struct {
	Name           string
	Columns        map[string]types.ColumnType // declared column -> semantic type, in Order
	Order          []string                    // column declaration order
	PrimaryKey     string
	Searchable     map[string]bool // subset of Columns, used by the inverted index
	Sensitive      map[string]bool // subset of Columns, encrypted at rest
	Vector         *VectorField
	Validate       Validator
	BestEffort     bool // bulk-insert partial-failure mode; default false (all-or-nothing)
}

// Column adds a column declaration. Order is preserved for deterministic
// codec layout and migration diffing.
func (t *TableDef) Column(name string, ct types.ColumnType) *TableDef {
	if t.Columns == nil {
		t.Columns = map[string]types.ColumnType{}
	}
	if _, exists := t.Columns[name]; !exists {
		t.Order = append(t.Order, name)
	}
	t.Columns[name] = ct
	return t
}

// WithPrimaryKey designates the primary-key column; it must already be
// declared via Column.
func (t *TableDef) WithPrimaryKey(name string) *TableDef {
	t.PrimaryKey = name
	return t
}

// WithSearchable marks columns as indexed by the inverted (full-text) index.
func (t *TableDef) WithSearchable(names ...string) *TableDef {
	if t.Searchable == nil {
		t.Searchable = map[string]bool{}
	}
	for _, n := range names {
		t.Searchable[n] = true
	}
	return t
}

// WithSensitive marks columns as encrypted at rest.
func (t *TableDef) WithSensitive(names ...string) *TableDef {
	if t.Sensitive == nil {
		t.Sensitive = map[string]bool{}
	}
	for _, n := range names {
		t.Sensitive[n] = true
	}
	return t
}

// WithVector declares the table's single vector field.
func (t *TableDef) WithVector(v VectorField) *TableDef {
	if v.Metric == "" {
		v.Metric = "cosine"
	}
	t.Vector = &v
	return t
}

// WithValidator attaches a per-row validator.
func (t *TableDef) WithValidator(v Validator) *TableDef {
	t.Validate = v
	return t
}

// New starts a TableDef builder.
func New(name string) *TableDef {
	return &TableDef{Name: name, Columns: map[string]types.ColumnType{}}
}

// Validate checks structural invariants of the definition itself (not a
// row): PK declared, vector dims explicit and positive, sensitive/
// searchable columns actually declared.
func (t *TableDef) Validate() error {
	if t.Name == "" {
		return qerr.New(qerr.ValidationFailed, "schema.Validate", "table name required")
	}
	if t.PrimaryKey == "" {
		return qerr.New(qerr.ValidationFailed, "schema.Validate", "primary key required").WithTable(t.Name)
	}
	if _, ok := t.Columns[t.PrimaryKey]; !ok {
		return qerr.New(qerr.ValidationFailed, "schema.Validate", "primary key column not declared").WithTable(t.Name)
	}
	for col := range t.Searchable {
		if _, ok := t.Columns[col]; !ok {
			return qerr.New(qerr.ValidationFailed, "schema.Validate", "searchable column not declared").WithTable(t.Name).WithColumn(col)
		}
	}
	for col := range t.Sensitive {
		if _, ok := t.Columns[col]; !ok {
			return qerr.New(qerr.ValidationFailed, "schema.Validate", "sensitive column not declared").WithTable(t.Name).WithColumn(col)
		}
	}
	if t.Vector != nil {
		if t.Vector.Dims <= 0 {
			return qerr.New(qerr.ValidationFailed, "schema.Validate", "vector field requires explicit positive dims").WithTable(t.Name)
		}
		if t.Vector.Column == "" {
			return qerr.New(qerr.ValidationFailed, "schema.Validate", "vector field requires a column name").WithTable(t.Name)
		}
		if ct, ok := t.Columns[t.Vector.Column]; !ok || ct != types.ColVector {
			return qerr.New(qerr.ValidationFailed, "schema.Validate", "vector column not declared as a vector type").WithTable(t.Name)
		}
		if t.Vector.SourceField != "" {
			if _, ok := t.Columns[t.Vector.SourceField]; !ok {
				return qerr.New(qerr.ValidationFailed, "schema.Validate", "vector source field not declared").WithTable(t.Name)
			}
		}
	}
	return nil
}

// CheckRow validates a candidate row against the column types and PK
// presence declared by t, independent of any attached Validator.
func (t *TableDef) CheckRow(row types.Row) error {
	pk, ok := row[t.PrimaryKey]
	if !ok || pk.Null() {
		return qerr.New(qerr.ValidationFailed, "schema.CheckRow", "primary key missing").WithTable(t.Name).WithColumn(t.PrimaryKey)
	}
	for col, ct := range t.Columns {
		v, present := row[col]
		if !present || v.Null() {
			continue // optional: an absent column is accepted as is
		}
		if v.Type != ct {
			return qerr.New(qerr.ValidationFailed, "schema.CheckRow",
				fmt.Sprintf("expected type %s, got %s", ct, v.Type)).WithTable(t.Name).WithColumn(col)
		}
		if ct == types.ColVector && t.Vector != nil && col == t.Vector.Column {
			vec, _ := v.AsVector()
			if len(vec) != t.Vector.Dims {
				return qerr.New(qerr.DimensionMismatch, "schema.CheckRow", "vector dimension mismatch").WithTable(t.Name).WithColumn(col)
			}
		}
	}
	return nil
}

// Default returns the type-appropriate zero value used to backfill a column
// added by a schema upgrade.
func Default(ct types.ColumnType) types.Value {
	switch ct {
	case types.ColString:
		return types.StringValue("")
	case types.ColNumber:
		return types.NumberValue(0)
	case types.ColInteger:
		return types.IntegerValue(0)
	case types.ColBoolean:
		return types.BooleanValue(false)
	case types.ColJSON:
		return types.JSONValue([]byte("null"))
	case types.ColBytes:
		return types.BytesValue(nil)
	default:
		return types.Value{}
	}
}

// Schema is the full set of table definitions for one DB, keyed by name.
type Schema map[string]*TableDef

// Validate checks every table definition.
func (s Schema) Validate() error {
	for _, t := range s {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
