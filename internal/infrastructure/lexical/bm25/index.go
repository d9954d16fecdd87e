// Package bm25 implements the in-memory Okapi BM25 index over the word-segmented
// corpus together with the query tokenizer that matches its token form.
package bm25

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

type Params struct {
	K1      float64
	B       float64
	Epsilon float64
}

func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

type posting struct {
	doc  int
	freq int
}

// Index holds postings, document lengths and IDF values. It is immutable after
// Build and safe for concurrent Search calls.
type Index struct {
	params   Params
	ids      []string
	docLen   []int
	avgDocLn float64
	postings map[string][]posting
	idf      map[string]float64
}

// Build indexes docs, where docs[i] holds the tokens of the chunk ids[i].
// Tokens must already be normalized the way the query tokenizer normalizes.
func Build(ids []string, docs [][]string, params Params) (*Index, error) {
	if len(ids) != len(docs) {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "build bm25 index",
			fmt.Errorf("%d ids for %d token lists", len(ids), len(docs)))
	}
	if len(ids) == 0 {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "build bm25 index", errors.New("no documents"))
	}
	if params.K1 <= 0 || params.B < 0 || params.B > 1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build bm25 index",
			fmt.Errorf("invalid parameters k1=%v b=%v", params.K1, params.B))
	}

	idx := &Index{
		params:   params,
		ids:      append([]string(nil), ids...),
		docLen:   make([]int, len(docs)),
		postings: make(map[string][]posting, 1024),
	}

	total := 0
	for doc, tokens := range docs {
		idx.docLen[doc] = len(tokens)
		total += len(tokens)

		freqs := make(map[string]int, len(tokens))
		for _, token := range tokens {
			freqs[token]++
		}
		for term, freq := range freqs {
			idx.postings[term] = append(idx.postings[term], posting{doc: doc, freq: freq})
		}
	}
	idx.avgDocLn = float64(total) / float64(len(docs))
	if idx.avgDocLn == 0 {
		idx.avgDocLn = 1
	}
	idx.computeIDF()

	return idx, nil
}

func (idx *Index) computeIDF() {
	n := float64(len(idx.ids))
	idx.idf = make(map[string]float64, len(idx.postings))

	sum := 0.0
	negative := make([]string, 0)
	for term, list := range idx.postings {
		df := float64(len(list))
		value := math.Log(n-df+0.5) - math.Log(df+0.5)
		idx.idf[term] = value
		sum += value
		if value < 0 {
			negative = append(negative, term)
		}
	}
	if len(idx.idf) == 0 {
		return
	}

	// Terms present in more than half the corpus get a small positive floor
	// relative to the mean IDF instead of a negative weight.
	floor := idx.params.Epsilon * sum / float64(len(idx.idf))
	for _, term := range negative {
		idx.idf[term] = floor
	}
}

// Search scores every document sharing at least one term with the query and
// returns the best k, ties broken by corpus order. A query token that occurs
// twice contributes twice.
func (idx *Index) Search(tokens []string, k int) []domain.RankedCandidate {
	if k <= 0 || len(tokens) == 0 {
		return []domain.RankedCandidate{}
	}

	scores := make(map[int]float64)
	k1 := idx.params.K1
	b := idx.params.B
	for _, token := range tokens {
		list, ok := idx.postings[token]
		if !ok {
			continue
		}
		idf := idx.idf[token]
		for _, p := range list {
			tf := float64(p.freq)
			norm := k1 * (1 - b + b*float64(idx.docLen[p.doc])/idx.avgDocLn)
			scores[p.doc] += idf * (tf * (k1 + 1) / (tf + norm))
		}
	}

	docs := make([]int, 0, len(scores))
	for doc := range scores {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		si, sj := scores[docs[i]], scores[docs[j]]
		if si != sj {
			return si > sj
		}
		return docs[i] < docs[j]
	})
	if len(docs) > k {
		docs = docs[:k]
	}

	out := make([]domain.RankedCandidate, len(docs))
	for rank, doc := range docs {
		out[rank] = domain.RankedCandidate{ChunkID: idx.ids[doc], Rank: rank, Score: scores[doc]}
	}
	return out
}

// Has reports whether term occurs anywhere in the corpus.
func (idx *Index) Has(term string) bool {
	_, ok := idx.postings[term]
	return ok
}

func (idx *Index) Len() int {
	return len(idx.ids)
}

func (idx *Index) VocabularySize() int {
	return len(idx.postings)
}
