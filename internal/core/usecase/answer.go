package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
)

type GateObserver interface {
	ObserveGate(outcome string)
}

// AnswerUseCase is the surface-facing composition of Retrieve and the
// relevance gate shared by HTTP, NATS and MCP.
type AnswerUseCase struct {
	retriever ports.Retriever
	threshold float64
	observer  GateObserver
}

func NewAnswerUseCase(retriever ports.Retriever, threshold float64, observer GateObserver) *AnswerUseCase {
	return &AnswerUseCase{
		retriever: retriever,
		threshold: threshold,
		observer:  observer,
	}
}

func (uc *AnswerUseCase) Threshold() float64 {
	return uc.threshold
}

func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.RetrieveRequest, minScore *float64) (domain.Answer, error) {
	threshold := uc.threshold
	if minScore != nil {
		if math.IsNaN(*minScore) || math.IsInf(*minScore, 0) {
			return domain.Answer{}, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("min_score must be a finite number"))
		}
		threshold = *minScore
	}

	chunks, err := uc.retriever.Retrieve(ctx, req)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("answer: %w", err)
	}
	if chunks == nil {
		chunks = []domain.ScoredChunk{}
	}

	decision := ApplyRelevanceGate(chunks, threshold)
	if uc.observer != nil {
		uc.observer.ObserveGate(string(decision.Outcome))
	}
	return domain.Answer{Chunks: chunks, Gate: decision}, nil
}
