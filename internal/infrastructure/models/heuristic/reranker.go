// Package heuristic is a model-free reranker for local runs and tests. It
// scores lexical overlap between the query and each passage in [0, 1].
package heuristic

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	unigramWeight = 0.7
	bigramWeight  = 0.3
)

type Reranker struct{}

func NewReranker() *Reranker {
	return &Reranker{}
}

func (r *Reranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	queryTokens := splitWordsLower(query)
	unigrams := toSet(queryTokens)
	bigrams := toSet(joinBigrams(queryTokens))

	scores := make([]float64, len(passages))
	for i, passage := range passages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tokens := splitWordsLower(passage)
		scores[i] = unigramWeight*tokenOverlap(unigrams, toSet(tokens)) +
			bigramWeight*tokenOverlap(bigrams, toSet(joinBigrams(tokens)))
	}
	return scores, nil
}

// tokenOverlap is the share of query tokens present in the passage.
func tokenOverlap(query, passage map[string]struct{}) float64 {
	if len(query) == 0 || len(passage) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := passage[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func joinBigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// splitWordsLower composes to NFC and lower-cases with Vietnamese rules, then
// splits on anything that is not a letter or digit, so word-segmented text
// ("lao_động") and free text ("lao động") agree.
func splitWordsLower(s string) []string {
	if s == "" {
		return nil
	}
	s = cases.Lower(language.Vietnamese).String(norm.NFC.String(s))

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
