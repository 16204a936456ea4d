package index

import "math"

func logf(x float64) float64 { return math.Log(x) }

// BM25 parameters, the conventional Okapi defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25Score scores one posting: tf is the term frequency in the document,
// docFreq is the number of documents containing the term, totalDocs is the
// corpus size, docLen/avgDocLen are this document's and the corpus
// average length.
func bm25Score(tf, docFreq, totalDocs int, docLen, avgDocLen float64) float64 {
	if docFreq == 0 || totalDocs == 0 {
		return 0
	}
	idf := idfOf(docFreq, totalDocs)
	if avgDocLen == 0 {
		avgDocLen = 1
	}
	num := float64(tf) * (bm25K1 + 1)
	den := float64(tf) + bm25K1*(1-bm25B+bm25B*docLen/avgDocLen)
	if den == 0 {
		return 0
	}
	return idf * num / den
}

// idfOf computes the BM25 inverse document frequency, floored at a small
// positive epsilon so a term present in every document still contributes a
// strictly positive score rather than zeroing or inverting the rank.
func idfOf(docFreq, totalDocs int) float64 {
	idf := logf(1 + (float64(totalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
	if idf <= 0 {
		return 1e-6
	}
	return idf
}
