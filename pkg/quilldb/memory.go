package quilldb

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quilldb/quilldb/pkg/memory"
	"github.com/quilldb/quilldb/pkg/metrics"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/query"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/types"
)

// MemoryTable builds the standard memory-record table definition: id,
// content, contentType, vector, metadata, importance, accessCount,
// lastAccessed, createdAt, updatedAt, category, tags, pinned — the column
// set memory.Record maps onto. vectorDims <= 0 omits the vector field
// (text-only memories).
func MemoryTable(name string, vectorDims int) *schema.TableDef {
	t := schema.New(name).
		Column("id", types.ColString).
		Column("content", types.ColString).
		Column("contentType", types.ColString).
		Column("metadata", types.ColJSON).
		Column("importance", types.ColNumber).
		Column("accessCount", types.ColInteger).
		Column("lastAccessed", types.ColDate).
		Column("createdAt", types.ColDate).
		Column("updatedAt", types.ColDate).
		Column("category", types.ColString).
		Column("tags", types.ColJSON).
		Column("pinned", types.ColBoolean).
		WithPrimaryKey("id").
		WithSearchable("content")
	if vectorDims > 0 {
		t.Column("vector", types.ColVector)
		t.WithVector(schema.VectorField{Column: "vector", Dims: vectorDims})
	}
	return t
}

func recordToRow(r memory.Record) (types.Row, error) {
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, qerr.Wrap(qerr.ValidationFailed, "quilldb.recordToRow", err)
	}
	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return nil, qerr.Wrap(qerr.ValidationFailed, "quilldb.recordToRow", err)
	}
	row := types.Row{
		"id":           types.StringValue(r.ID),
		"content":      types.StringValue(r.Content),
		"contentType":  types.StringValue(r.ContentType),
		"metadata":     types.JSONValue(meta),
		"importance":   types.NumberValue(r.Importance),
		"accessCount":  types.IntegerValue(r.AccessCount),
		"lastAccessed": types.DateValue(r.LastAccessed),
		"createdAt":    types.DateValue(r.CreatedAt),
		"updatedAt":    types.DateValue(r.UpdatedAt),
		"category":     types.StringValue(r.Category),
		"tags":         types.JSONValue(tags),
		"pinned":       types.BooleanValue(r.Pinned),
	}
	if r.Vector != nil {
		row["vector"] = types.VectorValue(r.Vector)
	}
	return row, nil
}

func rowToRecord(row types.Row) (memory.Record, error) {
	r := memory.Record{}
	if v, ok := row["id"]; ok {
		r.ID, _ = v.AsString()
	}
	if v, ok := row["content"]; ok {
		r.Content, _ = v.AsString()
	}
	if v, ok := row["contentType"]; ok {
		r.ContentType, _ = v.AsString()
	}
	if v, ok := row["metadata"]; ok {
		if raw, ok := v.AsJSON(); ok && len(raw) > 0 {
			if err := json.Unmarshal(raw, &r.Metadata); err != nil {
				return memory.Record{}, qerr.Wrap(qerr.ValidationFailed, "quilldb.rowToRecord", err)
			}
		}
	}
	if v, ok := row["importance"]; ok {
		r.Importance, _ = v.AsNumber()
	}
	if v, ok := row["accessCount"]; ok {
		r.AccessCount, _ = v.AsInteger()
	}
	if v, ok := row["lastAccessed"]; ok {
		r.LastAccessed, _ = v.AsDate()
	}
	if v, ok := row["createdAt"]; ok {
		r.CreatedAt, _ = v.AsDate()
	}
	if v, ok := row["updatedAt"]; ok {
		r.UpdatedAt, _ = v.AsDate()
	}
	if v, ok := row["category"]; ok {
		r.Category, _ = v.AsString()
	}
	if v, ok := row["tags"]; ok {
		if raw, ok := v.AsJSON(); ok && len(raw) > 0 {
			if err := json.Unmarshal(raw, &r.Tags); err != nil {
				return memory.Record{}, qerr.Wrap(qerr.ValidationFailed, "quilldb.rowToRecord", err)
			}
		}
	}
	if v, ok := row["pinned"]; ok {
		r.Pinned, _ = v.AsBoolean()
	}
	if v, ok := row["vector"]; ok {
		r.Vector, _ = v.AsVector()
	}
	return r, nil
}

// StoreMemory inserts rec into table, assigning an id via uuid if absent
// and recomputing Importance from baseImportance before writing, per the
// "writes recompute I" rule.
func (db *DB) StoreMemory(ctx context.Context, table string, rec memory.Record, baseImportance float64) (string, error) {
	if err := db.checkReady(); err != nil {
		return "", err
	}
	now := db.now()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.LastAccessed.IsZero() {
		rec.LastAccessed = now
	}
	rec.Importance = memory.ImportanceOf(rec, baseImportance, now, db.weights())

	row, err := recordToRow(rec)
	if err != nil {
		return "", err
	}
	if err := db.Insert(ctx, table, row); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// RetrieveMemory reads one memory record by id, without touching its
// access-count bookkeeping (only the contextual-retrieval path does that).
func (db *DB) RetrieveMemory(ctx context.Context, table, id string) (memory.Record, error) {
	if err := db.checkReady(); err != nil {
		return memory.Record{}, err
	}
	row, err := db.Get(ctx, table, id)
	if err != nil {
		return memory.Record{}, err
	}
	return rowToRecord(row)
}

// SearchMemories runs BM25 full-text search over table's content column and
// decodes each hit back into a Record.
func (db *DB) SearchMemories(ctx context.Context, table, text string, opts query.SearchOptions) ([]memory.Record, error) {
	if err := db.checkReady(); err != nil {
		return nil, err
	}
	hits, err := db.Search(ctx, table, text, opts)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Record, 0, len(hits))
	for _, h := range hits {
		rec, err := rowToRecord(h.Row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// RetrieveContextualMemories embeds contextText with table's registered
// embedder, shortlists the shortlistN nearest candidates by vector
// similarity, reranks by memory.RelevanceOf, and returns the top k. Every
// returned record's accessCount and lastAccessed are bumped in one shared
// write transaction before the results are handed back.
func (db *DB) RetrieveContextualMemories(ctx context.Context, table, contextText string, shortlistN, k int) ([]memory.Ranked, error) {
	if err := db.checkReady(); err != nil {
		return nil, err
	}
	fn, ok := db.engine.Embedder(table)
	if !ok {
		return nil, qerr.New(qerr.EmbedderFailed, "quilldb.RetrieveContextualMemories", "no embedder registered for table").WithTable(table)
	}
	embed := memory.Embedder(fn)

	rows, err := db.engine.GetAll(ctx, table, 0)
	if err != nil {
		return nil, err
	}
	candidates := make([]memory.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, rec)
	}

	now := db.now()
	ranked, err := memory.RetrieveContextual(ctx, embed, candidates, contextText, shortlistN, k, now, db.weights())
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return ranked, nil
	}

	updates := make(map[string]types.Row, len(ranked))
	for i := range ranked {
		ranked[i].Record.AccessCount++
		ranked[i].Record.LastAccessed = now
		updates[ranked[i].Record.ID] = types.Row{
			"accessCount":  types.IntegerValue(ranked[i].Record.AccessCount),
			"lastAccessed": types.DateValue(now),
		}
	}
	if err := db.engine.UpdateMany(ctx, table, updates); err != nil {
		return nil, err
	}
	db.invalidateTable(table)
	return ranked, nil
}

// ConsolidateMemoriesWithMetadata merges near-duplicate records within each
// category (cosine similarity >= threshold), deletes every merged-away
// loser, and writes the survivor back. Returns the consolidation result.
func (db *DB) ConsolidateMemoriesWithMetadata(ctx context.Context, table string, threshold float64, policy memory.ConsolidatePolicy) (memory.ConsolidateResult, error) {
	if err := db.checkReady(); err != nil {
		return memory.ConsolidateResult{}, err
	}
	rows, err := db.engine.GetAll(ctx, table, 0)
	if err != nil {
		return memory.ConsolidateResult{}, err
	}
	records := make([]memory.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return memory.ConsolidateResult{}, err
		}
		records = append(records, rec)
	}

	result := memory.Consolidate(records, threshold, policy)
	sort.Strings(result.Removed)

	for _, survivor := range result.Retained {
		row, err := recordToRow(survivor)
		if err != nil {
			return memory.ConsolidateResult{}, err
		}
		if err := db.engine.Update(ctx, table, survivor.ID, row); err != nil {
			return memory.ConsolidateResult{}, err
		}
	}
	for _, id := range result.Removed {
		if err := db.engine.Delete(ctx, table, id); err != nil {
			return memory.ConsolidateResult{}, err
		}
	}
	db.invalidateTable(table)
	metrics.MemoryConsolidationsTotal.Add(float64(result.Compressed))
	return result, nil
}

func (db *DB) now() time.Time {
	if db.cfg.Clock != nil {
		return db.cfg.Clock().UTC()
	}
	return time.Now().UTC()
}

func (db *DB) weights() memory.ScoringWeights {
	if db.cfg.ScoringWeights != nil {
		return *db.cfg.ScoringWeights
	}
	return memory.DefaultWeights()
}
