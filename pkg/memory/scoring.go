package memory

import (
	"math"
	"time"
)

// PriorityTagKey is the metadata key whose presence (with a truthy value)
// contributes PriorityTagBoost to importance.
const PriorityTagKey = "priority"

// ScoringWeights configures ImportanceOf and RelevanceOf. The zero value is
// not usable directly — callers should start from DefaultWeights.
type ScoringWeights struct {
	AccessFrequencyWeight float64
	RecencyWeight         float64
	PinnedBoost           float64 // added when pinned, then the sum saturates at 1
	PriorityTagBoost      float64 // added per recognized priority metadata tag

	SimilarityWeight    float64 // w_s
	RelRecencyWeight    float64 // w_r
	RelImportanceWeight float64 // w_i
	RelPinnedWeight     float64 // w_p

	ReferenceAccessCount int64                    // N in log(1+accessCount)/log(1+N)
	DefaultTau           time.Duration             // τ for categories absent from CategoryTau
	CategoryTau          map[string]time.Duration
}

// DefaultWeights are reasonable defaults for a general-purpose memory store.
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		AccessFrequencyWeight: 0.2,
		RecencyWeight:         0.2,
		PinnedBoost:           0.5,
		PriorityTagBoost:      0.15,

		SimilarityWeight:    0.5,
		RelRecencyWeight:    0.2,
		RelImportanceWeight: 0.2,
		RelPinnedWeight:     0.1,

		ReferenceAccessCount: 100,
		DefaultTau:           7 * 24 * time.Hour,
	}
}

func (w ScoringWeights) tauFor(category string) time.Duration {
	if t, ok := w.CategoryTau[category]; ok && t > 0 {
		return t
	}
	if w.DefaultTau > 0 {
		return w.DefaultTau
	}
	return 7 * 24 * time.Hour
}

// recencyFactor returns exp(-Δt/τ) for Δt = now - since, in (0,1].
func recencyFactor(since, now time.Time, tau time.Duration) float64 {
	if tau <= 0 {
		return 0
	}
	delta := now.Sub(since).Seconds()
	if delta < 0 {
		delta = 0
	}
	return math.Exp(-delta / tau.Seconds())
}

// ImportanceOf computes I ∈ [0,1]: base importance plus weighted
// access-frequency, recency, pinned, and priority-tag contributions,
// saturating at 1.
func ImportanceOf(r Record, base float64, now time.Time, w ScoringWeights) float64 {
	freq := math.Log(1+float64(r.AccessCount)) / math.Log(1+float64(w.ReferenceAccessCount))
	recency := recencyFactor(r.LastAccessed, now, w.tauFor(r.Category))

	score := base + w.AccessFrequencyWeight*freq + w.RecencyWeight*recency
	if r.Pinned {
		score += w.PinnedBoost
	}
	if truthy(r.Metadata[PriorityTagKey]) {
		score += w.PriorityTagBoost
	}
	return clamp01(score)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "0"
	case nil:
		return false
	default:
		return true
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// RelevanceOf computes R for a query with cosine similarity s ∈ [-1,1]
// against r: a weighted blend of similarity, recency, importance, and a
// pinned boost. R is strictly increasing in s and in I, and strictly
// decreasing in Δt (time since LastAccessed), for any weights > 0.
func RelevanceOf(r Record, similarity float64, now time.Time, w ScoringWeights) float64 {
	recency := recencyFactor(r.LastAccessed, now, w.tauFor(r.Category))
	pinnedBoost := 0.0
	if r.Pinned {
		pinnedBoost = 1
	}
	simTerm := (similarity + 1) / 2
	return w.SimilarityWeight*simTerm +
		w.RelRecencyWeight*recency +
		w.RelImportanceWeight*r.Importance +
		w.RelPinnedWeight*pinnedBoost
}
