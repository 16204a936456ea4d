package index

import (
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/schema"
)

// TableIndexes holds every in-memory index derived from one table's rows:
// the inverted text index over its searchable columns and, if the table
// declares a vector field, the flat cosine index over it. The primary and
// secondary indexes live in the KV row store itself (keyed by PK and by
// secondary-key respectively) and are not duplicated here.
type TableIndexes struct {
	Table    *schema.TableDef
	Inverted *Inverted
	Vector   *Vector
}

// newTableIndexes builds empty indexes for t.
func newTableIndexes(t *schema.TableDef) *TableIndexes {
	ti := &TableIndexes{Table: t, Inverted: NewInverted()}
	if t.Vector != nil {
		ti.Vector = NewVector(t.Vector.Dims)
	}
	return ti
}

// Manager owns the in-memory indexes for every table in a schema, rebuilt
// from the row stores on open and kept synchronously consistent with every
// committed write thereafter.
type Manager struct {
	tables map[string]*TableIndexes
}

// NewManager builds a Manager with empty indexes for every table in s.
func NewManager(s schema.Schema) *Manager {
	m := &Manager{tables: make(map[string]*TableIndexes, len(s))}
	for name, t := range s {
		m.tables[name] = newTableIndexes(t)
	}
	return m
}

// For returns the indexes for table, or NotFound if it is not part of the
// schema this manager was built from.
func (m *Manager) For(table string) (*TableIndexes, error) {
	ti, ok := m.tables[table]
	if !ok {
		return nil, qerr.New(qerr.NotFound, "index.Manager.For", "no such table").WithTable(table)
	}
	return ti, nil
}

// IndexRow updates the text and (if present) vector index for pk, given the
// concatenated searchable text and, optionally, the row's embedding vector.
// Called inside the same write transaction that persists the row.
func (m *Manager) IndexRow(table, pk, searchableText string, vector []float32) error {
	ti, err := m.For(table)
	if err != nil {
		return err
	}
	ti.Inverted.IndexDoc(pk, searchableText)
	if ti.Vector != nil && vector != nil {
		if err := ti.Vector.Upsert(pk, vector); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRow drops pk from every index of table.
func (m *Manager) RemoveRow(table, pk string) error {
	ti, err := m.For(table)
	if err != nil {
		return err
	}
	ti.Inverted.RemoveDoc(pk)
	if ti.Vector != nil {
		ti.Vector.Remove(pk)
	}
	return nil
}

// Search runs a BM25 text search for table.
func (m *Manager) Search(table, queryText string) ([]Scored, error) {
	ti, err := m.For(table)
	if err != nil {
		return nil, err
	}
	return ti.Inverted.Search(queryText), nil
}

// VectorSearch runs a cosine vector search for table.
func (m *Manager) VectorSearch(table string, query []float32, k int) ([]Scored, error) {
	ti, err := m.For(table)
	if err != nil {
		return nil, err
	}
	if ti.Vector == nil {
		return nil, qerr.New(qerr.ValidationFailed, "index.Manager.VectorSearch", "table has no vector field").WithTable(table)
	}
	return ti.Vector.Search(query, k)
}

// Hybrid combines a text-score set and a vector-score set into one ranked
// list: score = alpha*norm(text) + (1-alpha)*norm(vector), where norm
// min-max normalizes each set independently over the union of candidate
// PKs (a PK absent from one set contributes zero to that side).
func Hybrid(textHits, vectorHits []Scored, alpha float64) []Scored {
	textNorm := normalizeScores(textHits)
	vecNorm := normalizeScores(vectorHits)

	combined := make(map[string]float64, len(textNorm)+len(vecNorm))
	for pk, s := range textNorm {
		combined[pk] += alpha * s
	}
	for pk, s := range vecNorm {
		combined[pk] += (1 - alpha) * s
	}
	return sortScored(combined)
}

func normalizeScores(hits []Scored) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	spread := max - min
	for _, h := range hits {
		if spread == 0 {
			out[h.PK] = 1
			continue
		}
		out[h.PK] = (h.Score - min) / spread
	}
	return out
}
