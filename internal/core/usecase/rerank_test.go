package usecase

import (
	"context"
	"math"
	"testing"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

type fixedScorer struct {
	scores []float64
}

func (s fixedScorer) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	return s.scores, nil
}

func chunksFor(ids ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(ids))
	for i, id := range ids {
		out[i] = domain.Chunk{ChunkID: id, DocID: "doc-" + id, Text: "passage " + id}
	}
	return out
}

func TestRerankChunksSortsDescendingAndTruncates(t *testing.T) {
	out, err := rerankChunks(context.Background(), fixedScorer{scores: []float64{0.1, 0.9, 0.5}}, "q", chunksFor("a", "b", "c"), 2)
	if err != nil {
		t.Fatalf("rerankChunks() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ChunkID != "b" || out[1].ChunkID != "c" {
		t.Fatalf("unexpected order: %+v", out)
	}
	if out[0].DocID != "doc-b" || out[0].Text != "passage b" || out[0].Score != 0.9 {
		t.Fatalf("expected chunk fields carried through, got %+v", out[0])
	}
}

func TestRerankChunksKeepsFusedOrderOnTies(t *testing.T) {
	out, err := rerankChunks(context.Background(), fixedScorer{scores: []float64{0.4, 0.7, 0.4, 0.7}}, "q", chunksFor("a", "b", "c", "d"), 10)
	if err != nil {
		t.Fatalf("rerankChunks() error = %v", err)
	}
	want := []string{"b", "d", "a", "c"}
	for i := range want {
		if out[i].ChunkID != want[i] {
			t.Fatalf("expected %v, got %+v", want, out)
		}
	}
}

func TestRerankChunksSortsNaNLast(t *testing.T) {
	out, err := rerankChunks(context.Background(), fixedScorer{scores: []float64{math.NaN(), -2, 3}}, "q", chunksFor("a", "b", "c"), 3)
	if err != nil {
		t.Fatalf("rerankChunks() error = %v", err)
	}
	if out[0].ChunkID != "c" || out[1].ChunkID != "b" || out[2].ChunkID != "a" {
		t.Fatalf("expected NaN last, got %+v", out)
	}
}

func TestRerankChunksRejectsScoreCountMismatch(t *testing.T) {
	_, err := rerankChunks(context.Background(), fixedScorer{scores: []float64{1}}, "q", chunksFor("a", "b"), 2)
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestRerankChunksNegativeScoresAreValid(t *testing.T) {
	out, err := rerankChunks(context.Background(), fixedScorer{scores: []float64{-7.5, -1.25}}, "q", chunksFor("a", "b"), 5)
	if err != nil {
		t.Fatalf("rerankChunks() error = %v", err)
	}
	if len(out) != 2 || out[0].ChunkID != "b" {
		t.Fatalf("expected raw logits ordered descending, got %+v", out)
	}
}
