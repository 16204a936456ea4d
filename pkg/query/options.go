package query

import "github.com/quilldb/quilldb/pkg/types"

// FindOptions configures Engine.Find: a predicate over rows, an optional
// order column (ascending unless Desc is set), and a limit/offset window
// applied after ordering.
type FindOptions struct {
	Where   Predicate
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// SearchOptions configures Engine.Search, VectorSearch, and HybridSearch.
type SearchOptions struct {
	Limit     int
	Alpha     float64 // hybrid text/vector blend weight, default 0.5
	NoCache   bool
	Threshold float64 // minimum score to keep, 0 disables
}

// BulkResult is the outcome of a bulk Insert.
type BulkResult struct {
	Inserted int
	Failed   []BulkFailure
}

// BulkFailure reports one failed record within a bulk Insert.
type BulkFailure struct {
	Index int
	Err   error
}

func (r *BulkResult) addFailure(i int, err error) {
	r.Failed = append(r.Failed, BulkFailure{Index: i, Err: err})
}

// Hit is one ranked search result carrying both its score and the decoded
// row, since callers of Search/VectorSearch/HybridSearch need the content,
// not just the PK.
type Hit struct {
	PK    string
	Score float64
	Row   types.Row
}
