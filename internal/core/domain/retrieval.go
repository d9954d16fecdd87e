package domain

// RankedCandidate is one entry of a single index's result list. Rank is the
// 0-based position; Score is the index's own score and is not comparable across
// indexes.
type RankedCandidate struct {
	ChunkID string  `json:"chunk_id"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score,omitempty"`
}

type FusedCandidate struct {
	ChunkID   string  `json:"chunk_id"`
	Score     float64 `json:"score"`
	FirstRank int     `json:"first_rank"`
}

// ScoredChunk is the final retrieval unit. Score is the reranker relevance score.
type ScoredChunk struct {
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

type RetrieveRequest struct {
	Query            string `json:"query"`
	RetrievalBreadth int    `json:"retrieval_breadth,omitempty"`
	RerankBreadth    int    `json:"rerank_breadth,omitempty"`
}

type GateOutcome string

const (
	GateAnswerable    GateOutcome = "answerable"
	GateNoResults     GateOutcome = "no_results"
	GateLowConfidence GateOutcome = "low_confidence"
)

type GateDecision struct {
	Outcome   GateOutcome   `json:"outcome"`
	Threshold float64       `json:"threshold"`
	Accepted  []ScoredChunk `json:"-"`
}

// Answer is a retrieval result together with the relevance gate decision the
// caller should act on.
type Answer struct {
	Chunks []ScoredChunk `json:"chunks"`
	Gate   GateDecision  `json:"gate"`
}
