package query

import (
	"context"
	"testing"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertManyDefaultModeRollsBackWholeBatchOnFailure(t *testing.T) {
	e := newTestEngine(t, notesTable())
	ctx := context.Background()

	records := []types.Row{
		{"id": types.StringValue("n1"), "title": types.StringValue("a"), "body": types.StringValue("x")},
		{"id": types.StringValue("n2"), "title": types.StringValue("b"), "body": types.StringValue("y")},
		{"id": types.StringValue("n1"), "title": types.StringValue("dup"), "body": types.StringValue("z")}, // duplicate PK, fails
	}

	result, err := e.InsertMany(ctx, "notes", records)
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.DuplicateKey))
	assert.Equal(t, 0, result.Inserted)

	// Nothing from the batch was left committed, including n1/n2 which
	// individually would have succeeded.
	_, err = e.Get(ctx, "notes", "n1")
	assert.True(t, qerr.Is(err, qerr.NotFound))
	_, err = e.Get(ctx, "notes", "n2")
	assert.True(t, qerr.Is(err, qerr.NotFound))
}

func TestInsertManyBestEffortSkipsFailingRowsAndCommitsRest(t *testing.T) {
	tbl := notesTable()
	tbl.BestEffort = true
	e := newTestEngine(t, tbl)
	ctx := context.Background()

	records := []types.Row{
		{"id": types.StringValue("n1"), "title": types.StringValue("a"), "body": types.StringValue("x")},
		{"title": types.StringValue("missing-pk"), "body": types.StringValue("y")}, // no primary key, fails
		{"id": types.StringValue("n2"), "title": types.StringValue("b"), "body": types.StringValue("z")},
	}

	result, err := e.InsertMany(ctx, "notes", records)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)

	got, err := e.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.True(t, got["title"].Equal(types.StringValue("a")))

	got, err = e.Get(ctx, "notes", "n2")
	require.NoError(t, err)
	assert.True(t, got["title"].Equal(types.StringValue("b")))
}

func TestInsertManyEmptyBatchIsNoop(t *testing.T) {
	e := newTestEngine(t, notesTable())
	result, err := e.InsertMany(context.Background(), "notes", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Empty(t, result.Failed)
}
