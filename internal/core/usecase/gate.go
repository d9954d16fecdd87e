package usecase

import "github.com/jien0404/zalo-legal-chatbot/internal/core/domain"

// ApplyRelevanceGate decides whether reranked chunks are good enough to answer
// from. The threshold is a property of the configured reranker model and is
// always supplied by the caller.
func ApplyRelevanceGate(chunks []domain.ScoredChunk, threshold float64) domain.GateDecision {
	decision := domain.GateDecision{
		Threshold: threshold,
		Accepted:  []domain.ScoredChunk{},
	}

	if len(chunks) == 0 {
		decision.Outcome = domain.GateNoResults
		return decision
	}
	if !(chunks[0].Score >= threshold) {
		decision.Outcome = domain.GateLowConfidence
		return decision
	}

	for _, chunk := range chunks {
		if chunk.Score >= threshold {
			decision.Accepted = append(decision.Accepted, chunk)
		}
	}
	decision.Outcome = domain.GateAnswerable
	return decision
}
