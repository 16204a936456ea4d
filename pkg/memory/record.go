// Package memory implements the scoring, consolidation, and contextual
// retrieval policy engine over memory-typed rows: importance aging,
// relevance ranking for retrieval-augmented generation, and periodic
// near-duplicate consolidation, grounded on the record shape used by
// other_examples/chirino-memory-service's Memory/MemoryVector model and
// the ScoredEmbedding convention from other_examples/liliang-cn-sqvect.
package memory

import "time"

// Record is one memory-typed row, the in-process shape the scoring and
// consolidation functions operate on. The facade maps it to/from a
// schema.TableDef row via the query engine.
type Record struct {
	ID          string
	Content     string
	ContentType string
	Vector      []float32
	Metadata    map[string]any
	Importance  float64
	AccessCount int64
	LastAccessed time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Category    string
	Tags        []string
	Pinned      bool
}
