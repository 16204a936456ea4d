package index

import "sort"

// Inverted is the in-memory inverted index: term -> postings, kept
// consistent with persisted __inv_<table> entries by the caller inside the
// same write transaction that mutates the row store.
type Inverted struct {
	postings  map[string]map[string]int // term -> pk -> tf
	docLen    map[string]int            // pk -> term count across searchable fields
	totalLen  int
}

// NewInverted builds an empty index.
func NewInverted() *Inverted {
	return &Inverted{postings: map[string]map[string]int{}, docLen: map[string]int{}}
}

// IndexDoc (re)indexes pk's searchable text, replacing any prior postings
// for pk so updates never leave dangling entries.
func (idx *Inverted) IndexDoc(pk string, text string) {
	idx.RemoveDoc(pk)
	terms := Tokenize(text)
	if len(terms) == 0 {
		return
	}
	tf := TermFreq(terms)
	for term, count := range tf {
		bucket, ok := idx.postings[term]
		if !ok {
			bucket = map[string]int{}
			idx.postings[term] = bucket
		}
		bucket[pk] = count
	}
	idx.docLen[pk] = len(terms)
	idx.totalLen += len(terms)
}

// RemoveDoc drops every posting for pk, per the "no dangling postings"
// invariant.
func (idx *Inverted) RemoveDoc(pk string) {
	if n, ok := idx.docLen[pk]; ok {
		idx.totalLen -= n
		delete(idx.docLen, pk)
	}
	for term, bucket := range idx.postings {
		if _, ok := bucket[pk]; ok {
			delete(bucket, pk)
			if len(bucket) == 0 {
				delete(idx.postings, term)
			}
		}
	}
}

// TotalDocs returns the number of indexed documents.
func (idx *Inverted) TotalDocs() int { return len(idx.docLen) }

// TermCount returns the number of distinct terms in the index.
func (idx *Inverted) TermCount() int { return len(idx.postings) }

// AvgDocLen returns the corpus-average document length in terms.
func (idx *Inverted) AvgDocLen() float64 {
	if len(idx.docLen) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.docLen))
}

// Scored is one ranked search hit.
type Scored struct {
	PK    string
	Score float64
}

// Search scores every document containing any term of query text with
// BM25, summed over matching terms, and returns hits sorted by descending
// score with a deterministic PK tiebreak.
func (idx *Inverted) Search(queryText string) []Scored {
	terms := Tokenize(queryText)
	if len(terms) == 0 {
		return nil
	}
	totalDocs := idx.TotalDocs()
	avgLen := idx.AvgDocLen()

	scores := map[string]float64{}
	for _, term := range uniq(terms) {
		bucket, ok := idx.postings[term]
		if !ok {
			continue
		}
		docFreq := len(bucket)
		for pk, tf := range bucket {
			s := bm25Score(tf, docFreq, totalDocs, float64(idx.docLen[pk]), avgLen)
			scores[pk] += s
		}
	}
	return sortScored(scores)
}

func uniq(terms []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func sortScored(scores map[string]float64) []Scored {
	out := make([]Scored, 0, len(scores))
	for pk, s := range scores {
		out = append(out, Scored{PK: pk, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PK < out[j].PK
	})
	return out
}
