package quilldb

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/quilldb/quilldb/pkg/memory"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/query"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/sync"
	"github.com/quilldb/quilldb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notesSchema() schema.Schema {
	t := schema.New("notes").
		Column("id", types.ColString).
		Column("title", types.ColString).
		Column("body", types.ColString).
		WithPrimaryKey("id").
		WithSearchable("title", "body")
	return schema.Schema{"notes": t}
}

func openTestDB(t *testing.T, cfg Config) *DB {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "quilldb.bolt")
	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestOpenReachesReadyAndInsertGetRoundTrip(t *testing.T) {
	db := openTestDB(t, Config{Version: 1, Schema: notesSchema()})
	assert.Equal(t, StateReady, db.State())

	ctx := context.Background()
	row := types.Row{"id": types.StringValue("n1"), "title": types.StringValue("hello"), "body": types.StringValue("world")}
	require.NoError(t, db.Insert(ctx, "notes", row))

	got, err := db.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.True(t, got["title"].Equal(types.StringValue("hello")))
}

func TestCloseReturnsNotReadyForFurtherMutations(t *testing.T) {
	db := openTestDB(t, Config{Version: 1, Schema: notesSchema()})
	require.NoError(t, db.Close(context.Background()))
	assert.Equal(t, StateClosed, db.State())

	err := db.Insert(context.Background(), "notes", types.Row{"id": types.StringValue("n1")})
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.NotReady))
}

func TestSearchIsServedFromCacheUntilInvalidated(t *testing.T) {
	db := openTestDB(t, Config{Version: 1, Schema: notesSchema(), CacheMaxEntries: 64, CacheDuration: time.Minute})
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, "notes", types.Row{
		"id": types.StringValue("n1"), "title": types.StringValue("machine learning"), "body": types.StringValue(""),
	}))

	hits, err := db.Search(ctx, "notes", "machine", query.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(0), db.GetStats().Cache.CacheHits)

	hits, err = db.Search(ctx, "notes", "machine", query.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), db.GetStats().Cache.CacheHits)

	require.NoError(t, db.Insert(ctx, "notes", types.Row{
		"id": types.StringValue("n2"), "title": types.StringValue("quantum physics"), "body": types.StringValue(""),
	}))
	hits, err = db.Search(ctx, "notes", "machine", query.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestRotateEncryptionKeyPreservesPlaintextAndChangesCiphertext(t *testing.T) {
	secrets := schema.New("secrets").
		Column("id", types.ColString).
		Column("apiKey", types.ColString).
		WithPrimaryKey("id").
		WithSensitive("apiKey")
	db := openTestDB(t, Config{Version: 1, Schema: schema.Schema{"secrets": secrets}, EncryptionKey: make([]byte, 32)})

	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, "secrets", types.Row{
		"id": types.StringValue("s1"), "apiKey": types.StringValue("top-secret-token"),
	}))

	got, err := db.Get(ctx, "secrets", "s1")
	require.NoError(t, err)
	assert.True(t, got["apiKey"].Equal(types.StringValue("top-secret-token")))

	txn, err := db.store.Begin(ctx, []string{"secrets"}, false)
	require.NoError(t, err)
	rawBefore, err := txn.Get("secrets", []byte("s1"))
	require.NoError(t, err)
	rawBefore = append([]byte(nil), rawBefore...)
	_ = txn.Abort()

	require.NoError(t, db.RotateEncryptionKey(ctx, make([]byte, 32)))
	assert.Equal(t, StateReady, db.State())

	got, err = db.Get(ctx, "secrets", "s1")
	require.NoError(t, err)
	assert.True(t, got["apiKey"].Equal(types.StringValue("top-secret-token")))

	txn, err = db.store.Begin(ctx, []string{"secrets"}, false)
	require.NoError(t, err)
	rawAfter, err := txn.Get("secrets", []byte("s1"))
	require.NoError(t, err)
	rawAfter = append([]byte(nil), rawAfter...)
	_ = txn.Abort()
	assert.NotEqual(t, string(rawBefore), string(rawAfter))
}

func TestRotationResumesAfterCrashBeforeSweepCompletes(t *testing.T) {
	secrets := schema.New("secrets").
		Column("id", types.ColString).
		Column("apiKey", types.ColString).
		WithPrimaryKey("id").
		WithSensitive("apiKey")
	path := filepath.Join(t.TempDir(), "quilldb.bolt")
	oldKey := make([]byte, 32)
	newKey := bytes.Repeat([]byte{0x02}, 32)

	cfg := Config{Version: 1, Schema: schema.Schema{"secrets": secrets}, Path: path, EncryptionKey: oldKey}
	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, "secrets", types.Row{
		"id": types.StringValue("s1"), "apiKey": types.StringValue("sk-old"),
	}))

	// Simulate RotateEncryptionKey crashing after its pending-rotation record
	// is durably persisted and the new key is prepended to the in-memory
	// ring, but before the sweep (or its completion) ever runs.
	newKeyID := "crash-key"
	sealed, err := db.crypto.Seal(rotationSealColumn, newKey)
	require.NoError(t, err)
	require.NoError(t, db.persistPendingRotation(ctx, newKeyID, sealed))
	db.crypto.Ring().Prepend(newKeyID, newKey)

	require.NoError(t, db.Close(ctx))

	db2, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close(context.Background()) })

	assert.Equal(t, StateReady, db2.State())

	got, err := db2.Get(ctx, "secrets", "s1")
	require.NoError(t, err)
	assert.True(t, got["apiKey"].Equal(types.StringValue("sk-old")))

	// A fresh rotation must be possible now that the resumed one resolved.
	require.NoError(t, db2.RotateEncryptionKey(ctx, bytes.Repeat([]byte{0x03}, 32)))
	got, err = db2.Get(ctx, "secrets", "s1")
	require.NoError(t, err)
	assert.True(t, got["apiKey"].Equal(types.StringValue("sk-old")))
}

func memoriesSchema(dims int) schema.Schema {
	t := MemoryTable("memories", dims)
	return schema.Schema{"memories": t}
}

func TestStoreAndRetrieveMemoryRoundTrip(t *testing.T) {
	db := openTestDB(t, Config{Version: 1, Schema: memoriesSchema(0)})
	ctx := context.Background()

	id, err := db.StoreMemory(ctx, "memories", memory.Record{
		Content: "the user prefers dark mode", Category: "preference",
	}, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := db.RetrieveMemory(ctx, "memories", id)
	require.NoError(t, err)
	assert.Equal(t, "the user prefers dark mode", rec.Content)
	assert.Greater(t, rec.Importance, 0.0)
}

func TestRetrieveContextualMemoriesBumpsAccessCount(t *testing.T) {
	db := openTestDB(t, Config{Version: 1, Schema: memoriesSchema(3)})
	ctx := context.Background()
	require.NoError(t, db.RegisterEmbedder("memories", func(_ context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}))

	id, err := db.StoreMemory(ctx, "memories", memory.Record{
		Content: "likes dark mode", Category: "preference", Vector: []float32{1, 0, 0},
	}, 0.2)
	require.NoError(t, err)

	ranked, err := db.RetrieveContextualMemories(ctx, "memories", "dark mode", 10, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, id, ranked[0].Record.ID)

	rec, err := db.RetrieveMemory(ctx, "memories", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.AccessCount)
}

func TestConsolidateMemoriesWithMetadataMergesAndDeletes(t *testing.T) {
	db := openTestDB(t, Config{Version: 1, Schema: memoriesSchema(3)})
	ctx := context.Background()

	idA, err := db.StoreMemory(ctx, "memories", memory.Record{
		Content: "a", Category: "x", Vector: []float32{1, 0, 0},
	}, 0.1)
	require.NoError(t, err)
	idB, err := db.StoreMemory(ctx, "memories", memory.Record{
		Content: "b", Category: "x", Vector: []float32{0.99, 0.14, 0},
	}, 0.1)
	require.NoError(t, err)

	result, err := db.ConsolidateMemoriesWithMetadata(ctx, "memories", 0.9, memory.ConcatenateContent)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Compressed)

	survivorID := idA
	if _, err := db.RetrieveMemory(ctx, "memories", idA); err != nil {
		survivorID = idB
	}
	_, err = db.RetrieveMemory(ctx, "memories", survivorID)
	require.NoError(t, err)
}

type recordingAdapter struct{ pushed int }

func (a *recordingAdapter) Name() string { return "recorder" }
func (a *recordingAdapter) Push(records []sync.Record) error {
	a.pushed += len(records)
	return nil
}

func TestSyncEnabledWiresChangeSetsThroughToAdapter(t *testing.T) {
	db := openTestDB(t, Config{Version: 1, Schema: notesSchema(), Sync: SyncConfig{Enabled: true}})
	ctx := context.Background()

	adapter := &recordingAdapter{}
	db.syncMgr.Register(adapter)

	require.NoError(t, db.Insert(ctx, "notes", types.Row{
		"id": types.StringValue("n1"), "title": types.StringValue("a"), "body": types.StringValue("b"),
	}))
	require.NoError(t, db.syncMgr.Flush(ctx, "recorder"))
	assert.Equal(t, 1, adapter.pushed)

	stats := db.GetStats()
	require.Contains(t, stats.SyncStates, "recorder")
	assert.Equal(t, sync.StateIdle, stats.SyncStates["recorder"])
}
