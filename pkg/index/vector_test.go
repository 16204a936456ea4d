package index

import (
	"testing"

	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorSearchOrdersByCosineSimilarityDescending(t *testing.T) {
	v := NewVector(2)
	require.NoError(t, v.Upsert("close", []float32{1, 0}))
	require.NoError(t, v.Upsert("far", []float32{0, 1}))
	require.NoError(t, v.Upsert("mid", []float32{1, 1}))

	hits, err := v.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "close", hits[0].PK)
	assert.Equal(t, "far", hits[2].PK)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
}

func TestVectorSearchLimitsToK(t *testing.T) {
	v := NewVector(1)
	for _, pk := range []string{"a", "b", "c"} {
		require.NoError(t, v.Upsert(pk, []float32{1}))
	}
	hits, err := v.Search([]float32{1}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestVectorSearchTiesBreakByPK(t *testing.T) {
	v := NewVector(2)
	require.NoError(t, v.Upsert("zeta", []float32{1, 0}))
	require.NoError(t, v.Upsert("alpha", []float32{1, 0}))

	hits, err := v.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "alpha", hits[0].PK)
	assert.Equal(t, "zeta", hits[1].PK)
}

func TestVectorUpsertRejectsWrongDimension(t *testing.T) {
	v := NewVector(3)
	err := v.Upsert("pk", []float32{1, 2})
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.DimensionMismatch))
}

func TestVectorRemoveDropsEntry(t *testing.T) {
	v := NewVector(1)
	require.NoError(t, v.Upsert("pk", []float32{1}))
	v.Remove("pk")
	assert.Equal(t, 0, v.Len())
}
