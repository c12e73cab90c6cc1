package usecase

import "github.com/kirillkom/tanya-lalin/internal/core/domain"

// filterFused drops results below minScore and only then truncates to limit.
func filterFused(results []domain.FusedResult, minScore float64, limit int) []domain.FusedResult {
	kept := make([]domain.FusedResult, 0, len(results))
	for _, r := range results {
		if r.FusedScore < minScore {
			continue
		}
		kept = append(kept, r)
	}
	return trimCandidates(kept, limit)
}

func trimCandidates(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
