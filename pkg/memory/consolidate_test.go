package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidateMergesSimilarRecordsWithinCategory(t *testing.T) {
	now := time.Now()
	records := []Record{
		{ID: "a", Category: "notes", Content: "alpha", Vector: []float32{1, 0, 0}, Importance: 0.3, AccessCount: 2, Tags: []string{"x"}, LastAccessed: now},
		{ID: "b", Category: "notes", Content: "alpha twin", Vector: []float32{0.99, 0.01, 0}, Importance: 0.7, AccessCount: 5, Tags: []string{"y"}, LastAccessed: now},
		{ID: "c", Category: "notes", Content: "unrelated", Vector: []float32{0, 0, 1}, Importance: 0.5, AccessCount: 1, LastAccessed: now},
	}

	result := Consolidate(records, 0.9, ConcatenateContent)

	require.Len(t, result.Retained, 2)
	assert.Equal(t, 1, result.Compressed)
	assert.Contains(t, result.Removed, "a")

	var survivor Record
	for _, r := range result.Retained {
		if r.ID == "b" {
			survivor = r
		}
	}
	require.Equal(t, "b", survivor.ID)
	assert.Equal(t, 0.7, survivor.Importance)
	assert.EqualValues(t, 7, survivor.AccessCount)
	assert.ElementsMatch(t, []string{"x", "y"}, survivor.Tags)
}

func TestConsolidatePreservesAccessCountAcrossMerge(t *testing.T) {
	records := []Record{
		{ID: "a", Category: "notes", Vector: []float32{1, 0}, AccessCount: 3},
		{ID: "b", Category: "notes", Vector: []float32{1, 0}, AccessCount: 4},
		{ID: "c", Category: "notes", Vector: []float32{1, 0}, AccessCount: 5},
	}
	result := Consolidate(records, 0.5, DropDuplicateContent)

	require.Len(t, result.Retained, 1)
	var total int64
	for _, r := range records {
		total += r.AccessCount
	}
	assert.Equal(t, total, result.Retained[0].AccessCount)
}

func TestConsolidateLeavesDissimilarRecordsUntouched(t *testing.T) {
	records := []Record{
		{ID: "a", Category: "notes", Vector: []float32{1, 0}},
		{ID: "b", Category: "notes", Vector: []float32{0, 1}},
	}
	result := Consolidate(records, 0.95, ConcatenateContent)
	assert.Len(t, result.Retained, 2)
	assert.Equal(t, 0, result.Compressed)
	assert.Empty(t, result.Removed)
}

func TestConsolidateDoesNotMergeAcrossCategories(t *testing.T) {
	records := []Record{
		{ID: "a", Category: "notes", Vector: []float32{1, 0}},
		{ID: "b", Category: "tasks", Vector: []float32{1, 0}},
	}
	result := Consolidate(records, 0.5, ConcatenateContent)
	assert.Len(t, result.Retained, 2)
	assert.Equal(t, 0, result.Compressed)
}

func TestConsolidateTransitiveClusterMergesAllThree(t *testing.T) {
	records := []Record{
		{ID: "a", Category: "notes", Vector: []float32{1, 0, 0}},
		{ID: "b", Category: "notes", Vector: []float32{0.95, 0.31, 0}},
		{ID: "c", Category: "notes", Vector: []float32{0.81, 0.59, 0}},
	}
	result := Consolidate(records, 0.9, ConcatenateContent)
	require.Len(t, result.Retained, 1)
	assert.Equal(t, 2, result.Compressed)
}
