package query

import (
	"context"

	"github.com/quilldb/quilldb/pkg/index"
	"github.com/quilldb/quilldb/pkg/qerr"
)

// Search runs a BM25 full-text search over table's searchable columns and
// hydrates each hit's row.
func (e *Engine) Search(ctx context.Context, table, text string, opts SearchOptions) ([]Hit, error) {
	hits, err := e.indexes.Search(table, text)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, table, applyLimitThreshold(hits, opts))
}

// VectorSearch runs a cosine similarity search over table's vector index.
func (e *Engine) VectorSearch(ctx context.Context, table string, query []float32, opts SearchOptions) ([]Hit, error) {
	k := opts.Limit
	if k <= 0 {
		k = 10
	}
	hits, err := e.indexes.VectorSearch(table, query, k)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, table, applyLimitThreshold(hits, opts))
}

// HybridSearch combines BM25 text ranking and cosine vector ranking via a
// linear blend, alpha weighting the text side (default 0.5).
func (e *Engine) HybridSearch(ctx context.Context, table, text string, vector []float32, opts SearchOptions) ([]Hit, error) {
	alpha := opts.Alpha
	if alpha == 0 {
		alpha = 0.5
	}
	textHits, err := e.indexes.Search(table, text)
	if err != nil {
		return nil, err
	}
	k := opts.Limit
	if k <= 0 {
		k = 10
	}
	var vecHits []index.Scored
	if vector != nil {
		vecHits, err = e.indexes.VectorSearch(table, vector, k)
		if err != nil && !qerr.Is(err, qerr.ValidationFailed) {
			return nil, err
		}
	}
	combined := index.Hybrid(textHits, vecHits, alpha)
	return e.hydrate(ctx, table, applyLimitThreshold(combined, opts))
}

func applyLimitThreshold(hits []index.Scored, opts SearchOptions) []index.Scored {
	if opts.Threshold != 0 {
		filtered := hits[:0:0]
		for _, h := range hits {
			if h.Score >= opts.Threshold {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

func (e *Engine) hydrate(ctx context.Context, table string, hits []index.Scored) ([]Hit, error) {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		row, err := e.Get(ctx, table, h.PK)
		if err != nil {
			if qerr.Is(err, qerr.NotFound) {
				continue // index entry outlived its row; skip rather than fail the whole search
			}
			return nil, err
		}
		out = append(out, Hit{PK: h.PK, Score: h.Score, Row: row})
	}
	return out, nil
}
