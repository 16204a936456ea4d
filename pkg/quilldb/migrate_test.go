package quilldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaMigrationBackfillsAddedColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quilldb.bolt")
	v1 := schema.Schema{"notes": schema.New("notes").
		Column("id", types.ColString).
		Column("title", types.ColString).
		WithPrimaryKey("id")}

	db, err := Open(context.Background(), Config{Version: 1, Schema: v1, Path: path})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, "notes", types.Row{
		"id": types.StringValue("n1"), "title": types.StringValue("hello"),
	}))
	require.NoError(t, db.Close(ctx))

	v2 := schema.Schema{"notes": schema.New("notes").
		Column("id", types.ColString).
		Column("title", types.ColString).
		Column("body", types.ColString).
		WithPrimaryKey("id")}

	db2, err := Open(context.Background(), Config{Version: 2, Schema: v2, Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close(context.Background()) })

	got, err := db2.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.True(t, got["title"].Equal(types.StringValue("hello")))
	assert.True(t, got["body"].Equal(types.StringValue("")))

	// A second insert doesn't need to supply the backfilled column either.
	require.NoError(t, db2.Insert(ctx, "notes", types.Row{
		"id": types.StringValue("n2"), "title": types.StringValue("world"),
	}))
}

func TestSchemaMigrationDropsRemovedTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quilldb.bolt")
	v1 := schema.Schema{
		"notes":   schema.New("notes").Column("id", types.ColString).WithPrimaryKey("id"),
		"scratch": schema.New("scratch").Column("id", types.ColString).WithPrimaryKey("id"),
	}
	db, err := Open(context.Background(), Config{Version: 1, Schema: v1, Path: path})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, "scratch", types.Row{"id": types.StringValue("s1")}))
	require.NoError(t, db.Close(ctx))

	v2 := schema.Schema{
		"notes": schema.New("notes").Column("id", types.ColString).WithPrimaryKey("id"),
	}
	db2, err := Open(context.Background(), Config{Version: 2, Schema: v2, Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close(context.Background()) })

	_, err = db2.Get(ctx, "scratch", "s1")
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.NotFound))

	txn, err := db2.store.Begin(ctx, nil, false)
	require.NoError(t, err)
	defer txn.Abort()
	_, err = txn.Cursor("scratch")
	require.Error(t, err)
}

func TestSchemaMigrationRejectsChangedColumnType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quilldb.bolt")
	v1 := schema.Schema{"events": schema.New("events").
		Column("id", types.ColString).
		Column("count", types.ColInteger).
		WithPrimaryKey("id")}
	db, err := Open(context.Background(), Config{Version: 1, Schema: v1, Path: path})
	require.NoError(t, err)
	require.NoError(t, db.Close(context.Background()))

	v2 := schema.Schema{"events": schema.New("events").
		Column("id", types.ColString).
		Column("count", types.ColString).
		WithPrimaryKey("id")}
	_, err = Open(context.Background(), Config{Version: 2, Schema: v2, Path: path})
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.IncompatibleSchemaChange))
}
