package index

import (
	"math"
	"sort"

	"github.com/quilldb/quilldb/pkg/qerr"
)

// vecEntry is one (pk, unit-normalized vector) pair held by the flat index.
type vecEntry struct {
	pk  string
	vec []float32
}

// Vector is a flat, brute-force cosine-similarity index — the only index
// shape that fits a client-side embedded store where an HNSW/IVF build
// would cost more than it saves at the scale this engine targets. Vectors
// are normalized to unit length on insert so similarity search reduces to
// a dot product.
type Vector struct {
	dims    int
	entries map[string]*vecEntry
}

// NewVector builds an empty index fixed to dims dimensions.
func NewVector(dims int) *Vector {
	return &Vector{dims: dims, entries: map[string]*vecEntry{}}
}

// Dims reports the index's fixed dimensionality.
func (v *Vector) Dims() int { return v.dims }

// Upsert (re)indexes pk's vector, which must have v.Dims() components.
func (v *Vector) Upsert(pk string, vec []float32) error {
	if len(vec) != v.dims {
		return qerr.New(qerr.DimensionMismatch, "index.Vector.Upsert", "vector length does not match index dimensionality")
	}
	v.entries[pk] = &vecEntry{pk: pk, vec: normalize(vec)}
	return nil
}

// Remove drops pk from the index, a no-op if pk was never indexed.
func (v *Vector) Remove(pk string) {
	delete(v.entries, pk)
}

// Len returns the number of indexed vectors.
func (v *Vector) Len() int { return len(v.entries) }

// Search returns the k nearest entries to query by cosine similarity,
// highest first, with a deterministic PK tiebreak on equal scores.
func (v *Vector) Search(query []float32, k int) ([]Scored, error) {
	if len(query) != v.dims {
		return nil, qerr.New(qerr.DimensionMismatch, "index.Vector.Search", "query vector length does not match index dimensionality")
	}
	if k <= 0 {
		return nil, nil
	}
	q := normalize(query)
	out := make([]Scored, 0, len(v.entries))
	for pk, e := range v.entries {
		out = append(out, Scored{PK: pk, Score: dot(q, e.vec)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PK < out[j].PK
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return append([]float32(nil), v...)
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
