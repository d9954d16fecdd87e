package ports

import (
	"context"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

// Encoder maps text to a dense vector. It must be the model that populated the
// semantic index.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// SemanticIndex returns the nearest chunk ids for a query vector, best first.
type SemanticIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.RankedCandidate, error)
}

// Reranker scores (query, passage) pairs. The result is parallel to passages.
type Reranker interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Tokenizer produces the token form the lexical index was built with.
type Tokenizer interface {
	Tokenize(text string) []string
}

// LexicalIndex ranks corpus chunks for an already tokenized query.
type LexicalIndex interface {
	Search(tokens []string, k int) []domain.RankedCandidate
}

// CorpusReader resolves chunk ids to their corpus entries.
type CorpusReader interface {
	Lookup(chunkID string) (domain.Chunk, bool)
}

// Catalog is one consistent view over tokenizer, lexical index and corpus.
type Catalog interface {
	Tokenizer
	LexicalIndex
	CorpusReader
}

// CatalogProvider hands out the catalog a request uses for its whole lifetime.
type CatalogProvider interface {
	Current() Catalog
}

// RetrievalObserver receives pipeline telemetry.
type RetrievalObserver interface {
	ObserveStage(stage string, duration time.Duration)
	ObserveResult(outcome string, chunks int)
	ObserveDangling()
}
