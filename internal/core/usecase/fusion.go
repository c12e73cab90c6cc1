package usecase

import (
	"sort"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

type fusedCandidate struct {
	chunk    domain.Chunk
	keyText  string
	score    float64
	bestRank int
	hits     int
}

// fuseWeightedRRF merges per-variant rankings: score(c) = Σ weight(v) / (rrfK + rank(v, c)).
// Ties are broken by best single-variant rank, then by identity key.
func fuseWeightedRRF(lists []domain.RankedList, rrfK int) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = domain.DefaultRetrievalLimits().RRFK
	}

	size := 0
	for _, list := range lists {
		size += len(list.Entries)
	}

	acc := make(map[domain.ChunkKey]*fusedCandidate, size)
	for _, list := range lists {
		weight := list.Variant.Weight
		for _, entry := range list.Entries {
			key := entry.Chunk.Key()
			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{keyText: key.String(), bestRank: entry.Rank, chunk: entry.Chunk}
				acc[key] = candidate
			}
			candidate.chunk = preferRicherChunk(candidate.chunk, entry.Chunk)
			candidate.score += weight / float64(rrfK+entry.Rank)
			candidate.hits++
			if entry.Rank < candidate.bestRank {
				candidate.bestRank = entry.Rank
			}
		}
	}

	candidates := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].bestRank != candidates[j].bestRank {
			return candidates[i].bestRank < candidates[j].bestRank
		}
		return candidates[i].keyText < candidates[j].keyText
	})

	out := make([]domain.FusedResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.FusedResult{
			Chunk:       c.chunk,
			FusedScore:  c.score,
			BestRank:    c.bestRank,
			VariantHits: c.hits,
		})
	}
	return out
}

// preferRicherChunk keeps the copy with the longer text; ties keep the first one seen.
func preferRicherChunk(current, candidate domain.Chunk) domain.Chunk {
	if len(candidate.Text) > len(current.Text) {
		return candidate
	}
	return current
}
