// Package eval measures retrieval quality against labelled questions at the
// document level: several chunks of one document count as one hit.
package eval

// HitAtK is 1 when any relevant document appears in the top k.
func HitAtK(retrieved []string, relevant []string, k int) float64 {
	if len(relevant) == 0 || k <= 0 {
		return 0
	}
	relSet := toSet(relevant)
	for _, id := range topK(retrieved, k) {
		if relSet[id] {
			return 1
		}
	}
	return 0
}

// RecallAtK is the fraction of relevant documents found in the top k.
func RecallAtK(retrieved []string, relevant []string, k int) float64 {
	if len(relevant) == 0 || k <= 0 {
		return 0
	}
	relSet := toSet(relevant)
	found := 0
	for _, id := range topK(retrieved, k) {
		if relSet[id] {
			found++
			delete(relSet, id)
		}
	}
	return float64(found) / float64(len(toSet(relevant)))
}

// PrecisionAtK is the fraction of the top k that is relevant.
func PrecisionAtK(retrieved []string, relevant []string, k int) float64 {
	top := topK(retrieved, k)
	if len(top) == 0 {
		return 0
	}
	relSet := toSet(relevant)
	found := 0
	for _, id := range top {
		if relSet[id] {
			found++
		}
	}
	return float64(found) / float64(len(top))
}

// ReciprocalRank is 1/rank of the first relevant document, 0 when none.
func ReciprocalRank(retrieved []string, relevant []string) float64 {
	relSet := toSet(relevant)
	for i, id := range retrieved {
		if relSet[id] {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// DedupDocIDs keeps the first occurrence of each document id.
func DedupDocIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func topK(items []string, k int) []string {
	if k <= 0 {
		return nil
	}
	if k < len(items) {
		return items[:k]
	}
	return items
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
