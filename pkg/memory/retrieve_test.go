package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantEmbedder(vec []float32) Embedder {
	return func(ctx context.Context, text string) ([]float32, error) { return vec, nil }
}

func TestRetrieveContextualShortlistsAndReranks(t *testing.T) {
	now := time.Now()
	candidates := []Record{
		{ID: "close", Vector: []float32{1, 0}, Importance: 0.1, LastAccessed: now},
		{ID: "far", Vector: []float32{-1, 0}, Importance: 0.9, LastAccessed: now},
		{ID: "mid", Vector: []float32{0.7, 0.7}, Importance: 0.5, LastAccessed: now},
	}

	ranked, err := RetrieveContextual(context.Background(), constantEmbedder([]float32{1, 0}), candidates, "query", 2, 2, now, DefaultWeights())
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	for _, r := range ranked {
		assert.NotEqual(t, "far", r.Record.ID)
	}
}

func TestRetrieveContextualTruncatesToK(t *testing.T) {
	now := time.Now()
	candidates := []Record{
		{ID: "a", Vector: []float32{1, 0}, LastAccessed: now},
		{ID: "b", Vector: []float32{1, 0}, LastAccessed: now},
		{ID: "c", Vector: []float32{1, 0}, LastAccessed: now},
	}
	ranked, err := RetrieveContextual(context.Background(), constantEmbedder([]float32{1, 0}), candidates, "query", 0, 1, now, DefaultWeights())
	require.NoError(t, err)
	assert.Len(t, ranked, 1)
}

func TestRetrieveContextualTiesBreakByID(t *testing.T) {
	now := time.Now()
	candidates := []Record{
		{ID: "zeta", Vector: []float32{1, 0}, LastAccessed: now},
		{ID: "alpha", Vector: []float32{1, 0}, LastAccessed: now},
	}
	ranked, err := RetrieveContextual(context.Background(), constantEmbedder([]float32{1, 0}), candidates, "query", 0, 0, now, DefaultWeights())
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "alpha", ranked[0].Record.ID)
	assert.Equal(t, "zeta", ranked[1].Record.ID)
}

func TestRetrieveContextualPropagatesEmbedderError(t *testing.T) {
	failing := func(ctx context.Context, text string) ([]float32, error) { return nil, assert.AnError }
	_, err := RetrieveContextual(context.Background(), failing, nil, "query", 0, 0, time.Now(), DefaultWeights())
	assert.Error(t, err)
}
