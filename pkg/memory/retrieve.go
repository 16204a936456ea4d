package memory

import (
	"context"
	"sort"
	"time"
)

// Embedder maps free text to a vector, the same contract query.Embedder
// exposes for vector-bearing tables generally.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// Ranked is one contextually-retrieved memory with its relevance score.
type Ranked struct {
	Record    Record
	Relevance float64
}

// RetrieveContextual embeds context, shortlists the shortlistN nearest
// records by raw vector similarity, reranks the shortlist by RelevanceOf,
// and returns the top k. It performs no writes: the caller is responsible
// for bumping AccessCount/LastAccessed on each returned record in its own
// write transaction once it has decided which records were actually used.
func RetrieveContextual(ctx context.Context, embed Embedder, candidates []Record, contextText string, shortlistN, k int, now time.Time, w ScoringWeights) ([]Ranked, error) {
	vec, err := embed(ctx, contextText)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec Record
		sim float64
	}
	all := make([]scored, 0, len(candidates))
	for _, r := range candidates {
		all = append(all, scored{rec: r, sim: cosine(vec, r.Vector)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].sim > all[j].sim })
	if shortlistN > 0 && len(all) > shortlistN {
		all = all[:shortlistN]
	}

	ranked := make([]Ranked, 0, len(all))
	for _, s := range all {
		ranked = append(ranked, Ranked{Record: s.rec, Relevance: RelevanceOf(s.rec, s.sim, now, w)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].Record.ID < ranked[j].Record.ID
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}
