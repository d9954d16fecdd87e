package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
)

// rerankChunks scores every candidate against the query and returns the best
// limit of them. Candidates must be non-empty; the empty case never reaches
// the reranker.
func rerankChunks(
	ctx context.Context,
	reranker ports.Reranker,
	query string,
	candidates []domain.Chunk,
	limit int,
) ([]domain.ScoredChunk, error) {
	passages := make([]string, len(candidates))
	for i, chunk := range candidates {
		passages[i] = chunk.Text
	}

	scores, err := reranker.Score(ctx, query, passages)
	if err != nil {
		return nil, ensureKind(domain.ErrModelUnavailable, "rerank candidates", err)
	}
	if len(scores) != len(candidates) {
		return nil, domain.WrapError(
			domain.ErrModelUnavailable,
			"rerank candidates",
			fmt.Errorf("reranker returned %d scores for %d candidates", len(scores), len(candidates)),
		)
	}

	out := make([]domain.ScoredChunk, len(candidates))
	for i, chunk := range candidates {
		out[i] = domain.ScoredChunk{
			ChunkID: chunk.ChunkID,
			DocID:   chunk.DocID,
			Text:    chunk.Text,
			Score:   scores[i],
		}
	}

	// Stable: equal scores keep their fused order.
	sort.SliceStable(out, func(i, j int) bool {
		return higherScore(out[i].Score, out[j].Score)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// higherScore orders NaN below every real score.
func higherScore(a, b float64) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	default:
		return a > b
	}
}
