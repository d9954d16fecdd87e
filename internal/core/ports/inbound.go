package ports

import (
	"context"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

// Retriever is the inbound contract for hybrid retrieval with reranking.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) ([]domain.ScoredChunk, error)
}

// CatalogReloader rebuilds the corpus snapshot in place.
type CatalogReloader interface {
	Reload(ctx context.Context) error
	Ready() bool
}

// Answerer runs retrieval and applies the relevance gate. A nil minScore uses
// the configured threshold.
type Answerer interface {
	Answer(ctx context.Context, req domain.RetrieveRequest, minScore *float64) (domain.Answer, error)
}
