package quilldb

import (
	"context"
	"strconv"

	"github.com/quilldb/quilldb/pkg/cache"
	"github.com/quilldb/quilldb/pkg/metrics"
	"github.com/quilldb/quilldb/pkg/query"
	"github.com/quilldb/quilldb/pkg/types"
)

// Insert validates, encodes, indexes, and writes row as a new record of
// table, invalidating any cached query results for that table.
func (db *DB) Insert(ctx context.Context, table string, row types.Row) error {
	if err := db.checkReady(); err != nil {
		return err
	}
	timer := metrics.NewTimer()
	err := db.engine.Insert(ctx, table, row)
	timer.ObserveDurationVec(metrics.QueryDuration, table, "insert")
	metrics.QueryOperationsTotal.WithLabelValues(table, "insert").Inc()
	if err == nil {
		db.invalidateTable(table)
	}
	return err
}

// Update applies partial to the row identified by pk.
func (db *DB) Update(ctx context.Context, table, pk string, partial types.Row) error {
	if err := db.checkReady(); err != nil {
		return err
	}
	timer := metrics.NewTimer()
	err := db.engine.Update(ctx, table, pk, partial)
	timer.ObserveDurationVec(metrics.QueryDuration, table, "update")
	metrics.QueryOperationsTotal.WithLabelValues(table, "update").Inc()
	if err == nil {
		db.invalidateTable(table)
	}
	return err
}

// Delete removes the row identified by pk.
func (db *DB) Delete(ctx context.Context, table, pk string) error {
	if err := db.checkReady(); err != nil {
		return err
	}
	timer := metrics.NewTimer()
	err := db.engine.Delete(ctx, table, pk)
	timer.ObserveDurationVec(metrics.QueryDuration, table, "delete")
	metrics.QueryOperationsTotal.WithLabelValues(table, "delete").Inc()
	if err == nil {
		db.invalidateTable(table)
	}
	return err
}

// Get reads one row by primary key.
func (db *DB) Get(ctx context.Context, table, pk string) (types.Row, error) {
	if err := db.checkReady(); err != nil {
		return nil, err
	}
	return db.engine.Get(ctx, table, pk)
}

// GetAll returns up to limit rows of table in PK order.
func (db *DB) GetAll(ctx context.Context, table string, limit int) ([]types.Row, error) {
	if err := db.checkReady(); err != nil {
		return nil, err
	}
	return db.engine.GetAll(ctx, table, limit)
}

// Find scans table applying opts.
func (db *DB) Find(ctx context.Context, table string, opts query.FindOptions) ([]types.Row, error) {
	if err := db.checkReady(); err != nil {
		return nil, err
	}
	return db.engine.Find(ctx, table, opts)
}

// Search runs full-text BM25 search over table, serving from the query
// cache unless opts.NoCache is set.
func (db *DB) Search(ctx context.Context, table, text string, opts query.SearchOptions) ([]query.Hit, error) {
	if err := db.checkReady(); err != nil {
		return nil, err
	}
	return db.cachedQuery(ctx, table, "search", text, opts, nil, func() ([]query.Hit, error) {
		return db.engine.Search(ctx, table, text, opts)
	})
}

// VectorSearch runs cosine similarity search over table's vector index.
func (db *DB) VectorSearch(ctx context.Context, table string, vector []float32, opts query.SearchOptions) ([]query.Hit, error) {
	if err := db.checkReady(); err != nil {
		return nil, err
	}
	return db.cachedQuery(ctx, table, "vector", "", opts, vector, func() ([]query.Hit, error) {
		return db.engine.VectorSearch(ctx, table, vector, opts)
	})
}

// HybridSearch blends BM25 and vector ranking.
func (db *DB) HybridSearch(ctx context.Context, table, text string, vector []float32, opts query.SearchOptions) ([]query.Hit, error) {
	if err := db.checkReady(); err != nil {
		return nil, err
	}
	return db.cachedQuery(ctx, table, "hybrid", text, opts, vector, func() ([]query.Hit, error) {
		return db.engine.HybridSearch(ctx, table, text, vector, opts)
	})
}

// RegisterEmbedder wires fn as table's vector-bearing column embedder.
func (db *DB) RegisterEmbedder(table string, fn query.Embedder) error {
	if err := db.checkReady(); err != nil {
		return err
	}
	return db.engine.RegisterEmbedder(table, fn)
}

func (db *DB) cachedQuery(ctx context.Context, table, kind, text string, opts query.SearchOptions, vector []float32, run func() ([]query.Hit, error)) ([]query.Hit, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SearchDuration, table, kind)

	if opts.NoCache || db.cache == nil {
		return run()
	}
	key := db.searchFingerprint(table, kind, text, opts, vector)
	metrics.CacheQueriesTotal.Inc()
	if cached, ok := db.cache.Get(key); ok {
		metrics.CacheHitsTotal.Inc()
		return cached.([]query.Hit), nil
	}
	hits, err := run()
	if err != nil {
		return nil, err
	}
	db.cache.Put(key, hits)
	db.rememberFingerprint(table, key)
	return hits, nil
}

func (db *DB) searchFingerprint(table, kind, text string, opts query.SearchOptions, vector []float32) string {
	options := map[string]any{
		"kind":      kind,
		"limit":     opts.Limit,
		"alpha":     opts.Alpha,
		"threshold": opts.Threshold,
	}
	if vector != nil {
		options["vectorLen"] = strconv.Itoa(len(vector))
		options["vectorHash"] = cache.Fingerprint("", "", map[string]any{"v": vector})
	}
	return cache.Fingerprint(table, text, options)
}

// rememberFingerprint records that key was produced for table, so a later
// mutation on table can invalidate exactly the entries it affects rather
// than the whole cache — the fingerprint hash itself doesn't expose table.
func (db *DB) rememberFingerprint(table, key string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tableFingerprints == nil {
		db.tableFingerprints = map[string]map[string]bool{}
	}
	if db.tableFingerprints[table] == nil {
		db.tableFingerprints[table] = map[string]bool{}
	}
	db.tableFingerprints[table][key] = true
}

// invalidateTable drops every cached search result produced for table.
func (db *DB) invalidateTable(table string) {
	if db.cache == nil {
		return
	}
	db.mu.Lock()
	keys := db.tableFingerprints[table]
	delete(db.tableFingerprints, table)
	db.mu.Unlock()
	if len(keys) == 0 {
		return
	}
	db.cache.InvalidateTable(func(key string) bool { return keys[key] })
}
