package schema

import (
	"fmt"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
	"gopkg.in/yaml.v3"
)

// columnTypeNames maps the YAML scalar column type names to types.ColumnType,
// the declarative counterpart to the Column builder method.
var columnTypeNames = map[string]types.ColumnType{
	"string":  types.ColString,
	"number":  types.ColNumber,
	"integer": types.ColInteger,
	"boolean": types.ColBoolean,
	"date":    types.ColDate,
	"json":    types.ColJSON,
	"bytes":   types.ColBytes,
	"vector":  types.ColVector,
}

// columnDoc is one column declaration. Columns are a list, not a map, so
// declaration order in the file drives codec layout the same way the
// builder's Column calls do.
type columnDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// vectorDoc is the YAML shape of a table's vector field.
type vectorDoc struct {
	Column      string `yaml:"column"`
	SourceField string `yaml:"sourceField,omitempty"`
	Dims        int    `yaml:"dims"`
	Metric      string `yaml:"metric,omitempty"`
}

// tableDoc is the YAML shape of one table, the declarative counterpart to
// chaining TableDef builder calls by hand.
type tableDoc struct {
	Name       string      `yaml:"name"`
	PrimaryKey string      `yaml:"primaryKey"`
	Columns    []columnDoc `yaml:"columns"`
	Searchable []string    `yaml:"searchable,omitempty"`
	Sensitive  []string    `yaml:"sensitive,omitempty"`
	Vector     *vectorDoc  `yaml:"vector,omitempty"`
}

// document is the on-disk YAML document: a list of tables, grounded on the
// teacher's "apiVersion/kind/metadata/spec" apply-file shape but flattened
// to what a schema actually needs — there is no resource kind polymorphism
// here, just table definitions.
type document struct {
	Tables []tableDoc `yaml:"tables"`
}

// FromYAML parses a declarative schema document, the YAML counterpart to
// building a Schema via the TableDef builder methods in code.
func FromYAML(data []byte) (Schema, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, qerr.Wrap(qerr.ValidationFailed, "schema.FromYAML", err)
	}

	out := Schema{}
	for _, td := range doc.Tables {
		if td.Name == "" {
			return nil, qerr.New(qerr.ValidationFailed, "schema.FromYAML", "table missing name")
		}
		t := New(td.Name)
		for _, col := range td.Columns {
			ct, ok := columnTypeNames[col.Type]
			if !ok {
				return nil, qerr.New(qerr.ValidationFailed, "schema.FromYAML",
					fmt.Sprintf("unknown column type %q", col.Type)).WithTable(td.Name).WithColumn(col.Name)
			}
			t.Column(col.Name, ct)
		}
		if td.PrimaryKey != "" {
			t.WithPrimaryKey(td.PrimaryKey)
		}
		if len(td.Searchable) > 0 {
			t.WithSearchable(td.Searchable...)
		}
		if len(td.Sensitive) > 0 {
			t.WithSensitive(td.Sensitive...)
		}
		if td.Vector != nil {
			t.WithVector(VectorField{
				Column:      td.Vector.Column,
				SourceField: td.Vector.SourceField,
				Dims:        td.Vector.Dims,
				Metric:      td.Vector.Metric,
			})
		}
		out[td.Name] = t
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
