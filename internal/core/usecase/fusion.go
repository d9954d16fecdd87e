package usecase

import (
	"sort"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

const defaultRRFK = 60

// FuseRRF merges ranked lists with Reciprocal Rank Fusion. A chunk earns
// 1/(rrfK+rank+1) from every list it appears in, where rank is its 0-based
// position in that list. Only positions are used: BM25 and embedding scores are
// not on comparable scales, so raw scores never enter the fused score.
//
// Ties are broken by the earliest position the chunk reached in any list, then by
// chunk id, so the output does not depend on the order the lists are passed in.
func FuseRRF(rrfK int, lists ...[]domain.RankedCandidate) []domain.FusedCandidate {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	size := 0
	for _, list := range lists {
		size += len(list)
	}

	acc := make(map[string]*domain.FusedCandidate, size)
	for _, list := range lists {
		seen := make(map[string]struct{}, len(list))
		for rank, candidate := range list {
			id := candidate.ChunkID
			if id == "" {
				continue
			}
			// A chunk listed twice by one index only counts at its best rank.
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			fused, ok := acc[id]
			if !ok {
				fused = &domain.FusedCandidate{ChunkID: id, FirstRank: rank}
				acc[id] = fused
			}
			fused.Score += 1.0 / float64(rrfK+rank+1)
			if rank < fused.FirstRank {
				fused.FirstRank = rank
			}
		}
	}

	out := make([]domain.FusedCandidate, 0, len(acc))
	for _, fused := range acc {
		out = append(out, *fused)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].FirstRank != out[j].FirstRank {
			return out[i].FirstRank < out[j].FirstRank
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	return out
}
