package schema

import (
	"testing"

	"github.com/quilldb/quilldb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notesYAML = `
tables:
  - name: notes
    primaryKey: id
    columns:
      - name: id
        type: string
      - name: title
        type: string
      - name: body
        type: string
      - name: embedding
        type: vector
    searchable: [title, body]
    vector:
      column: embedding
      sourceField: body
      dims: 8
`

func TestFromYAMLBuildsTableDefWithDeclaredOrder(t *testing.T) {
	sch, err := FromYAML([]byte(notesYAML))
	require.NoError(t, err)

	notes, ok := sch["notes"]
	require.True(t, ok)
	assert.Equal(t, "id", notes.PrimaryKey)
	assert.Equal(t, []string{"id", "title", "body", "embedding"}, notes.Order)
	assert.Equal(t, types.ColVector, notes.Columns["embedding"])
	assert.True(t, notes.Searchable["title"])
	assert.True(t, notes.Searchable["body"])
	require.NotNil(t, notes.Vector)
	assert.Equal(t, 8, notes.Vector.Dims)
	assert.Equal(t, "body", notes.Vector.SourceField)
	assert.Equal(t, "cosine", notes.Vector.Metric)
}

func TestFromYAMLRejectsUnknownColumnType(t *testing.T) {
	const bad = `
tables:
  - name: notes
    primaryKey: id
    columns:
      - name: id
        type: uuid
`
	_, err := FromYAML([]byte(bad))
	assert.Error(t, err)
}

func TestFromYAMLRejectsMissingPrimaryKey(t *testing.T) {
	const bad = `
tables:
  - name: notes
    columns:
      - name: id
        type: string
`
	_, err := FromYAML([]byte(bad))
	assert.Error(t, err)
}
